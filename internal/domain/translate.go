package domain

import (
	"context"
	"log/slog"
	"strings"
)

// Translator turns German text into English.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// TranslateReport summarizes one translation pass over unique descriptions.
type TranslateReport struct {
	Texts      int `json:"texts"`
	Translated int `json:"translated"`
	Failed     int `json:"failed"`
}

// EnrichWithTranslation translates each distinct German description once.
// Failures leave DescriptionEN empty and processing continues.
func EnrichWithTranslation(ctx context.Context, incidents []Incident, translator Translator, logger *slog.Logger) ([]Incident, TranslateReport) {
	var report TranslateReport
	out := make([]Incident, len(incidents))
	copy(out, incidents)
	if translator == nil {
		return out, report
	}

	done := make(map[string]string)
	for i := range out {
		text := out[i].DescriptionDE
		if out[i].DescriptionEN != "" || strings.TrimSpace(text) == "" {
			continue
		}
		en, seen := done[text]
		if !seen {
			report.Texts++
			var err error
			en, err = translator.Translate(ctx, text)
			if err != nil {
				logger.Warn("translation failed",
					"row", i,
					"error", err,
				)
				report.Failed++
				en = ""
			} else {
				report.Translated++
			}
			done[text] = en
		}
		out[i].DescriptionEN = en
	}
	return out, report
}
