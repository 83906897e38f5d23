package mapsync

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/trip-planner/planner/internal/itinerary"
)

// PopupVariant selects how much detail a place popup shows.
type PopupVariant int

const (
	// PopupRich is used while discovering places.
	PopupRich PopupVariant = iota
	// PopupSimple shows name and type only, for reviewing a plan.
	PopupSimple
)

func (v PopupVariant) String() string {
	if v == PopupSimple {
		return "simple"
	}
	return "rich"
}

// ParsePopupVariant maps "simple" to PopupSimple and anything else to PopupRich.
func ParsePopupVariant(s string) PopupVariant {
	if strings.EqualFold(s, "simple") {
		return PopupSimple
	}
	return PopupRich
}

const (
	addressLimit     = 40
	descriptionLimit = 60
	phoneRegion      = "KR"
)

var typeBadges = map[string]string{
	"lodging":            "숙소",
	"hotel":              "숙소",
	"restaurant":         "음식점",
	"cafe":               "카페",
	"bakery":             "베이커리",
	"bar":                "바",
	"tourist_attraction": "관광지",
	"museum":             "박물관",
	"art_gallery":        "미술관",
	"park":               "공원",
	"shopping_mall":      "쇼핑",
	"store":              "상점",
	"amusement_park":     "놀이공원",
	"church":             "종교시설",
	"place_of_worship":   "종교시설",
	"train_station":      "역",
	"subway_station":     "역",
}

var popupTemplates = template.Must(template.New("rich").Parse(`<div class="popup popup-rich">
{{- if .PhotoURL}}<img class="popup-photo" src="{{.PhotoURL}}" alt="{{.Name}}">{{end -}}
<div class="popup-title"><strong>{{.Name}}</strong>{{if .Badge}} <span class="popup-badge">{{.Badge}}</span>{{end}}</div>
{{- if or .Rating .Price}}<div class="popup-meta">{{if .Rating}}<span class="popup-rating">★ {{.Rating}}</span>{{end}}{{if .Price}} <span class="popup-price">{{.Price}}</span>{{end}}</div>{{end -}}
{{- if .Address}}<div class="popup-address" title="{{.FullAddress}}">{{.Address}}</div>{{end -}}
{{- if .Description}}<div class="popup-description">{{.Description}}</div>{{end -}}
{{- if .Phone}}<div class="popup-phone"><a href="tel:{{.PhoneE164}}">{{.Phone}}</a></div>{{end -}}
{{- if .Website}}<div class="popup-website"><a href="{{.Website}}" target="_blank" rel="noopener">웹사이트</a></div>{{end -}}
</div>`))

func init() {
	template.Must(popupTemplates.New("simple").Parse(`<div class="popup popup-simple">
<div class="popup-title"><strong>{{.Name}}</strong>{{if .Badge}} <span class="popup-badge">{{.Badge}}</span>{{end}}</div>
</div>`))
}

type popupView struct {
	Name        string
	Badge       string
	PhotoURL    string
	Rating      string
	Price       string
	Address     string
	FullAddress string
	Description string
	Phone       string
	PhoneE164   string
	Website     string
}

// RenderPopup renders the info window HTML for p.
func RenderPopup(p itinerary.Place, variant PopupVariant) (string, error) {
	view := popupView{
		Name:  p.Name,
		Badge: TypeBadge(p.PrimaryType()),
	}

	name := "simple"
	if variant == PopupRich {
		name = "rich"
		view.PhotoURL = p.PhotoURL
		view.Address = Truncate(p.Address, addressLimit)
		view.FullAddress = p.Address
		view.Description = Truncate(p.Description, descriptionLimit)
		view.Website = p.Website
		view.Phone, view.PhoneE164 = formatPhone(p.Phone)
		if p.Rating != nil {
			view.Rating = fmt.Sprintf("%.1f", *p.Rating)
		}
		if p.PriceLevel != nil {
			view.Price = PriceTier(*p.PriceLevel)
		}
	}

	var buf bytes.Buffer
	if err := popupTemplates.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("rendering %s popup: %w", name, err)
	}
	return buf.String(), nil
}

// TypeBadge returns the display label for a provider place type.
func TypeBadge(placeType string) string {
	if label, ok := typeBadges[placeType]; ok {
		return label
	}
	return ""
}

// PriceTier renders a 0-4 price level as won signs. 0 is free.
func PriceTier(level int) string {
	switch {
	case level <= 0:
		return "무료"
	case level > 4:
		level = 4
	}
	return strings.Repeat("₩", level)
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit]) + "..."
}

// formatPhone returns the national display form and the E.164 form of raw.
// Numbers that do not parse are shown as given.
func formatPhone(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	num, err := phonenumbers.Parse(raw, phoneRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return raw, raw
	}
	return phonenumbers.Format(num, phonenumbers.NATIONAL), phonenumbers.Format(num, phonenumbers.E164)
}
