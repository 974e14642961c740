// Package llm is the text-generation service contract used by the assist
// features and the review analyzer, plus a client for any OpenAI-compatible
// endpoint and helpers for digging structured data out of model replies.
package llm
