package catalog

// Default — встроенный каталог.
// Важно: имена полей глобально уникальны → используем префиксы (nw_<сущность>_...).
func Default() Catalog {
	return New(
		FieldSet{
			Name:   "nw_product",
			Entity: "product",
			Label: Label{
				"de-DE":        "Zusätzliche Produktinfos",
				"en-GB":        "Additional product infos",
				LanguageSystem: "Zusätzliche Produktinfos",
			},
			Fields: []Field{
				{
					Name:     "nw_product_subtitle",
					Type:     TypeText,
					Position: 1,
					Label: Label{
						"de-DE":        "Untertitel",
						"en-GB":        "Subtitle",
						LanguageSystem: "Untertitel",
					},
				},
				{
					Name:     "nw_product_short_description",
					Type:     TypeText,
					Position: 2,
					Label: Label{
						"de-DE":        "Kurzbeschreibung",
						"en-GB":        "Short description",
						LanguageSystem: "Kurzbeschreibung",
					},
				},
			},
		},
	)
}
