// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config loads the router's ambient configuration: the HTTP listener,
the Redis and database backends used by the semantic cache and history
store, logging, and telemetry. Routing policy (allow-lists, thresholds,
keyword tables) is a separate, hot-reloadable concern owned by package
policy.

Precedence is defaults -> YAML file -> environment variables (ROUTER_ prefix).
*/
package config
