// Package retry 提供指数退避重试，默认只重试 types.Error 标记为 Retryable 的错误。
package retry
