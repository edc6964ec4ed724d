package advisor

import (
	"fmt"
	"strings"
)

const advicePrompt = `You are an expert agricultural assistant for Indian farmers. Your advice should be:
1. Specific to the farmer's crops and conditions when they are known.
2. Weather-aware: use the get_current_weather tool when irrigation, spraying, sowing or harvesting timing depends on the weather and a location is known.
3. Low-cost and accessible: prioritise affordable, practical solutions.
4. Actionable: give clear steps the farmer can take right now.
Keep answers short enough to read on a phone. Plain text only, no markdown tables.`

const diagnosisPrompt = `Analyze this image of a plant. Identify any visible pests or diseases.
Provide a concise summary of the issue and suggest a low-cost, organic treatment plan.
If no issue is visible, state that the plant appears healthy.
Focus on practical advice for Indian farmers.`

func systemPrompt(f Farmer, pivotName string) string {
	var b strings.Builder
	b.WriteString(advicePrompt)
	if pivotName == "" {
		pivotName = "English"
	}
	fmt.Fprintf(&b, "\nAlways answer in %s.", pivotName)
	if name := strings.TrimSpace(f.Name); name != "" {
		fmt.Fprintf(&b, "\nThe farmer's name is %s.", name)
	}
	return b.String()
}

func imagePrompt(caption, pivotName string) string {
	if pivotName == "" {
		pivotName = "English"
	}
	p := diagnosisPrompt + "\nAnswer in " + pivotName + "."
	if caption = strings.TrimSpace(caption); caption != "" {
		p += "\nThe farmer wrote: \"" + caption + "\""
	}
	return p
}
