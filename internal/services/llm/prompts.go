package llm

import "fmt"

func summaryPrompt(language, text string) string {
	return fmt.Sprintf(`You are an expert research assistant. Summarize the following paper text in %s.
Cover the problem the paper addresses, the proposed approach, the key results, and why they matter.
Use plain markdown with short paragraphs. Do not include a preamble.

%s`, language, text)
}

func summaryPartPrompt(language string, index, total int, text string) string {
	return fmt.Sprintf(`You are an expert research assistant. The paper text was split into %d parts; this is part %d.
Summarize this part in %s, keeping every technical detail that later parts may depend on.
Use plain markdown. Do not include a preamble.

%s`, total, index+1, language, text)
}

func mergeSummariesPrompt(language, joined string) string {
	return fmt.Sprintf(`The following are summaries of consecutive parts of one research paper, separated by "---".
Merge them into a single coherent summary in %s: remove repetition, keep the narrative order, and
preserve the key results. Use plain markdown. Do not include a preamble.

%s`, language, joined)
}

func translateTitlePrompt(language, title string) string {
	return fmt.Sprintf(`Translate this research paper title into %s.
Keep established technical terms and proper nouns as they are. Reply with the translated title only.

%s`, language, title)
}

func translateAbstractPrompt(language, abstract string) string {
	return fmt.Sprintf(`Translate this research paper abstract into %s.
Keep established technical terms as they are and preserve the original meaning precisely.
Reply with the translated abstract only.

%s`, language, abstract)
}
