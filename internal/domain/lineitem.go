package domain

import "fmt"

// ItemRef is the tagged catalog reference a line item carries: exactly one
// service or product id, discriminated by Type. A single tagged reference
// makes "both set" and "neither set" unrepresentable, so no runtime
// mutual-exclusion check is needed past the request boundary.
type ItemRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func ServiceRef(serviceID string) ItemRef {
	return ItemRef{Type: ItemTypeService, ID: serviceID}
}

func ProductRef(productID string) ItemRef {
	return ItemRef{Type: ItemTypeProduct, ID: productID}
}

func (r ItemRef) IsService() bool { return r.Type == ItemTypeService }
func (r ItemRef) IsProduct() bool { return r.Type == ItemTypeProduct }

// NewItemRef validates the two optional inbound ids into a tagged reference.
// The declared item type must name the populated id and the other id must be
// absent.
func NewItemRef(itemType string, serviceID string, productID string) (ItemRef, error) {
	switch itemType {
	case ItemTypeService:
		if serviceID == "" {
			return ItemRef{}, fmt.Errorf("service line item requires service_id")
		}
		if productID != "" {
			return ItemRef{}, fmt.Errorf("service line item must not carry product_id")
		}
		return ServiceRef(serviceID), nil
	case ItemTypeProduct:
		if productID == "" {
			return ItemRef{}, fmt.Errorf("product line item requires product_id")
		}
		if serviceID != "" {
			return ItemRef{}, fmt.Errorf("product line item must not carry service_id")
		}
		return ProductRef(productID), nil
	default:
		return ItemRef{}, fmt.Errorf("unknown item type %q", itemType)
	}
}
