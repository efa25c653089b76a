// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package server provides HTTP/HTTPS server lifecycle management: non-blocking
start, graceful shutdown, and OS signal handling.

# Overview

Manager wraps net/http.Server to unify listen, serve, shutdown, and error
propagation. It supports both plain HTTP and TLS startup, with built-in
SIGINT/SIGTERM handling suited to a production graceful-stop requirement.

# Core types

  - Manager: the server lifecycle owner. Holds an http.Server, a
    net.Listener, and an async error channel; exposes Start/StartTLS/
    Shutdown/WaitForShutdown.
  - Config: listen address, read/write/idle timeouts, max header size, and
    the graceful shutdown timeout.

# Capabilities

  - Non-blocking start: Start/StartTLS run the server in a background
    goroutine so the caller's main thread never blocks on Serve.
  - Graceful shutdown: Shutdown drains in-flight requests and releases the
    listener within the configured timeout.
  - Signal handling: WaitForShutdown listens for SIGINT/SIGTERM and triggers
    Shutdown automatically.
  - Error propagation: Errors() exposes an async channel so a caller can
    observe a server that exited on its own.
  - TLS: StartTLS hardens the server's TLS config via internal/tlsutil
    (TLS 1.2 minimum, AEAD-only ciphers) before serving the given cert/key.
  - Status: IsRunning/Addr report current state and listen address.
*/
package server
