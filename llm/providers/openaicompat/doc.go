// Package openaicompat implements llm.Provider for any endpoint that speaks
// the OpenAI Chat Completions format.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    APIKey:       cfg.LLM.APIKey,
//	    BaseURL:      cfg.LLM.BaseURL,
//	    DefaultModel: "gpt-4o-mini",
//	}, logger)
package openaicompat
