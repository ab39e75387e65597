package utils

// Rough token estimates for cost previews. Provider tokenizers differ; these
// numbers only need to be in the right range.

// perMessageOverhead approximates role and framing tokens per chat message.
const perMessageOverhead = 4

// CountTokens estimates the number of tokens in text at about four
// characters per token. Non-empty text is at least one token.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// MessageTokens estimates the prompt tokens of a chat request made of the
// given message bodies.
func MessageTokens(messages ...string) int {
	total := 0
	for _, m := range messages {
		total += CountTokens(m) + perMessageOverhead
	}
	return total
}
