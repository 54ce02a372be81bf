package api

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"fieldsync/internal/repo"
)

// ==== Параметры листинга ====

type ListParams struct {
	Limit   int
	Offset  int
	Filters map[string]string
}

// ==== Парсинг query-параметров ====

func parseListParams(q url.Values) ListParams {
	// limit
	limit := 50
	lv := q.Get("_limit")
	if lv == "" {
		lv = q.Get("limit")
	}
	if lv != "" {
		if n, err := strconv.Atoi(lv); err == nil && n >= 0 && n <= 1000 {
			limit = n
		}
	}

	// offset
	offset := 0
	ov := q.Get("_offset")
	if ov == "" {
		ov = q.Get("offset")
	}
	if ov != "" {
		if n, err := strconv.Atoi(ov); err == nil && n >= 0 {
			offset = n
		}
	}

	// фильтры равенства (исключаем служебные ключи); из повторов берём первый
	filters := make(map[string]string)
	for key, vals := range q {
		switch key {
		case "offset", "limit", "_offset", "_limit":
			continue
		}
		for _, v := range vals {
			if strings.TrimSpace(v) != "" {
				filters[key] = v
				break
			}
		}
	}

	return ListParams{Limit: limit, Offset: offset, Filters: filters}
}

// Criteria — фильтры в стабильном порядке
func (lp ListParams) Criteria() repo.Criteria {
	keys := make([]string, 0, len(lp.Filters))
	for k := range lp.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var c repo.Criteria
	for _, k := range keys {
		c = c.And(k, lp.Filters[k])
	}
	return c
}

// page возвращает окно [offset, offset+limit)
func (lp ListParams) page(ids []string) []string {
	start := lp.Offset
	if start > len(ids) {
		start = len(ids)
	}
	end := start + lp.Limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end]
}
