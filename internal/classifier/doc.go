// Package classifier scores decoded images with an opaque NSFW model.
// It supports a local ONNX model and a remote HTTP inference endpoint, with
// per-call timeouts, bounded retry, rate limiting, and an optional perceptual
// result cache.
package classifier
