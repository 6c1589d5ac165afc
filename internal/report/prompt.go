package report

import "sitescore/internal/external"

// promptInstructions is the fixed instruction block sent ahead of every
// assessment.
const promptInstructions = `
Generate a structured sustainability report in a professional format with a table for the following data. Include a title, reporting period (use "2024" as the year), location (use "Site Assessment Area" if not specified), and detailed analysis. Format the report clearly with headings and bullet points where necessary.
Structure the report as follows:
1. **Title**: Sustainability Assessment Report
2. **Location**: Latitude & Longitude
3. **Executive Summary** (Brief overview of findings)
4. **Detailed Analysis** (Breakdown of solar, wind, water, green and barren/open area feasibility in a table + explanations)
5. **Recommendations** (Based on the data)

Make sure to provide all important details of input json properly
Ensure no placeholder text like "[Insert...]" appears. Use exact values from the data.
If the data lists unavailable_sources, state that those inputs could not be retrieved rather than treating them as measured zeros.
`

// BuildPrompt appends the serialized assessment to the instruction block.
func BuildPrompt(data []byte) string {
	return promptInstructions + external.PromptDataMarker + "\n\n" + string(data)
}
