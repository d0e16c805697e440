package fiber

import "strings"

// StructureImage points at the molecular structure image of a fiber.
type StructureImage struct {
	FiberName string `json:"fiber_name"`
	ImageURL  string `json:"image_url"`
	FiberID   string `json:"fiber_id"`
	CMSID     string `json:"image_cms_id,omitempty"`
}

// StructureImages collects the images of matched fibers. When requested is set,
// only the fiber with that name (case-insensitive) is considered.
func StructureImages(matches []Match, requested string) []StructureImage {
	var images []StructureImage
	for _, m := range matches {
		if m.Fiber == nil || m.Fiber.StructureImageURL == "" {
			continue
		}
		if requested != "" && !strings.EqualFold(m.Fiber.Name, requested) {
			continue
		}
		images = append(images, StructureImage{
			FiberName: m.Fiber.Name,
			ImageURL:  m.Fiber.StructureImageURL,
			FiberID:   m.Fiber.FiberID,
			CMSID:     m.Fiber.StructureImageCMSID,
		})
	}
	return images
}
