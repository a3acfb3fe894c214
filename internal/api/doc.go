// Package api 暴露部署编排器的 REST 接口与指标端点。
package api
