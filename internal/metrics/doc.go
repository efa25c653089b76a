// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的路由器指标采集能力，覆盖
HTTP 入口、供应商调用、熔断器状态、语义缓存与自检升级五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数与耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 供应商指标：调用总数、耗时、Token 用量（prompt/completion），
    按 vendor/model 分组；以及路由回退计数。
  - 熔断器指标：全局/用户级熔断器当前开闭状态 Gauge。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 自检指标：自检评分分布与升级计数。
*/
package metrics
