package placement

import (
	"fmt"
	"strings"
)

// FallbackDescription replaces the location description when the describe
// call fails or returns nothing.
const FallbackDescription = "at the specified location."

// DescriptionPrompt asks a vision model what lies under the red marker.
const DescriptionPrompt = `
You are an expert scene analyst. I will provide you with an image that has a red dot on it.
Your task is to provide a very dense, semantic description of what is at the exact location of the marker.
Be specific about surfaces, objects, and spatial relationships. This description will be used to guide another AI in placing a new object.

Example semantic descriptions:
- "The product location is on the dark grey fabric of the sofa cushion, in the middle section, slightly to the left of the white throw pillow."
- "The product location is on the light-colored wooden floor, in the patch of sunlight coming from the window, about a foot away from the leg of the brown leather armchair."
- "The product location is on the white marble countertop, just to the right of the stainless steel sink and behind the green potted plant."

On top of the semantic description above, give a rough relative-to-image description.

Example relative-to-image descriptions:
- "The product location is about 10% away from the bottom-left of the image."
- "The product location is about 20% away from the right of the image."

Provide only the two descriptions concatenated in a few sentences.
`

const compositionTemplate = `
**Role:**
You are a visual composition expert. Your task is to take a 'Input' image and seamlessly integrate it into a 'scene' image, adjusting for perspective, lighting, and scale.

**Specifications:**
-   **Product to add:**
    The first image provided. It may be surrounded by black padding or background, which you should ignore and treat as transparent and only keep the product.
-   **Scene to use:**
    The second image provided. It may also be surrounded by black padding, which you should ignore.
-   **Placement Instruction (Crucial):**
    -   You must place the product at the location described below exactly. You should only place the product once. Use this dense, semantic description to find the exact spot in the scene.
    -   **Product location Description:** "%s"
-   **Final Image Requirements:**
    -   The output image's style, lighting, shadows, reflections, and camera perspective must exactly match the original scene.
    -   Do not just copy and paste the product. You must intelligently re-render it to fit the context. Adjust the product's perspective and orientation to its most natural position, scale it appropriately, and ensure it casts realistic shadows according to the scene's light sources.
    -   The product must have proportional realism. For example, a lamp product can't be bigger than a sofa in scene.
    -   You must not return the original scene image without product placement. The product must be always present in the composite image.

The output should ONLY be the final, composed image. Do not add any text or explanation.
`

// BuildCompositionPrompt embeds the location description into the
// composition instruction. A blank description uses FallbackDescription.
func BuildCompositionPrompt(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		description = FallbackDescription
	}
	return fmt.Sprintf(compositionTemplate, description)
}
