package detector

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Mode selects the detection strategy.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeAI     Mode = "ai"
)

// ParseMode maps a detection_type value to a Mode, defaulting to normal.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeAI)) {
		return ModeAI
	}
	return ModeNormal
}

// Result holds the merged detection outcome for one attachment.
type Result struct {
	HasIDCard bool
	HasPhone  bool
	// Analysis is the classifier's reply; empty in normal mode or on classifier failure.
	Analysis string
}

// Sensitive reports whether either category was found.
func (r Result) Sensitive() bool { return r.HasIDCard || r.HasPhone }

// ContentClassifier is the model-backed half of ai mode.
type ContentClassifier interface {
	Enabled() bool
	Classify(ctx context.Context, content string) (Verdict, error)
	DescribeImage(ctx context.Context, path string) (string, error)
}

// Detector combines the regular expressions with an optional classifier.
type Detector struct {
	classifier ContentClassifier
	log        *zap.SugaredLogger
}

// New creates a Detector; classifier may be nil.
func New(classifier ContentClassifier, log *zap.SugaredLogger) *Detector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Detector{classifier: classifier, log: log}
}

// AIAvailable reports whether ai mode can reach a classifier.
func (d *Detector) AIAvailable() bool {
	return d.classifier != nil && d.classifier.Enabled()
}

// Classifier returns the configured classifier, or nil.
func (d *Detector) Classifier() ContentClassifier { return d.classifier }

// Detect scans text and ocr. In ai mode each category is the OR of the regex match and the
// classifier's verdict; any classifier failure leaves the regex result in place.
func (d *Detector) Detect(ctx context.Context, mode Mode, text, ocr string) Result {
	res := Result{
		HasIDCard: MatchIDCard(text) || MatchIDCard(ocr),
		HasPhone:  MatchPhone(text) || MatchPhone(ocr),
	}
	if mode == ModeAI && d.AIAvailable() {
		content := analysisInput(text, ocr)
		if content != "" {
			v, err := d.classifier.Classify(ctx, content)
			if err != nil {
				d.log.Warnf("ai classification failed, using pattern result: %v", err)
			} else {
				res.HasIDCard = res.HasIDCard || v.HasIDCard
				res.HasPhone = res.HasPhone || v.HasPhone
				res.Analysis = v.Analysis
			}
		}
	}
	if res.HasIDCard {
		detectedTotal.WithLabelValues("id_card").Inc()
	}
	if res.HasPhone {
		detectedTotal.WithLabelValues("phone").Inc()
	}
	return res
}

// analysisInput joins text and ocr with a space, sending mirrored OCR only once.
func analysisInput(text, ocr string) string {
	if strings.TrimSpace(ocr) == "" || ocr == text {
		return strings.TrimSpace(text)
	}
	if strings.TrimSpace(text) == "" {
		return strings.TrimSpace(ocr)
	}
	return text + " " + ocr
}
