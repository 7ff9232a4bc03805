package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// one-hour cache breakpoint. Every permit in a run shares the same system
// prompt, so all calls after the first read it from cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: "1h"},
	}}
}
