package notionsync

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
)

// BillToProperties converts one bill into the properties of its calendar
// page. The Bill ID rich-text property carries the primary-store id and
// is what later runs match pages on; everything else is presentation.
func BillToProperties(liabilityName string, b *domain.Bill) notionapi.Properties {
	title := fmt.Sprintf("%s cycle %d", liabilityName, b.CycleNumber)
	if liabilityName == "" {
		title = fmt.Sprintf("cycle %d", b.CycleNumber)
	}

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{textSpan(title)},
		},
		"Bill ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{textSpan(b.ID)},
		},
		"Due Date": dateProp(b.DueDate),
		"Amount": notionapi.NumberProperty{
			Number: amountNumber(b.Total),
		},
		"Status": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: string(b.Status),
			},
		},
		"Interest Included": notionapi.CheckboxProperty{
			Checkbox: b.InterestIncluded,
		},
	}

	if liabilityName != "" {
		props["Liability"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: liabilityName,
			},
		}
	}

	// Only postponed bills diverge from their original date.
	if b.OriginalDueDate != b.DueDate {
		props["Original Due Date"] = dateProp(b.OriginalDueDate)
	}

	if b.Interest.IsPositive() {
		props["Interest"] = notionapi.NumberProperty{
			Number: amountNumber(b.Interest),
		}
	}
	if b.Fee.IsPositive() {
		props["Fee"] = notionapi.NumberProperty{
			Number: amountNumber(b.Fee),
		}
	}

	if b.PaidAt != nil {
		paid := notionapi.Date(*b.PaidAt)
		props["Paid On"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &paid,
			},
		}
	}
	if b.Classification != nil {
		props["Classification"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: string(b.Classification.Status),
			},
		}
	}

	if b.Note != "" {
		props["Note"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{textSpan(b.Note)},
		}
	}

	return props
}

// ExtractBillID reads the Bill ID property off a queried page. Returns
// empty for pages the sync never wrote, which marks them stale.
func ExtractBillID(page notionapi.Page) string {
	if prop, ok := page.Properties["Bill ID"]; ok {
		if rich, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rich.RichText) > 0 {
				return rich.RichText[0].PlainText
			}
		}
	}
	return ""
}

func textSpan(content string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{
			Content: content,
		},
	}
}

func dateProp(d civil.Date) notionapi.DateProperty {
	start := notionapi.Date(d.In(time.UTC))
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{
			Start: &start,
		},
	}
}

func amountNumber(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
