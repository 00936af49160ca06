package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Message keys used by the job tracker and the API.
const (
	KeyGenerating      = "placeholder.generating"
	KeyQueued          = "placeholder.queued"
	KeyQueuedUnknown   = "placeholder.queued_unknown"
	KeyRetrying        = "placeholder.retrying"
	KeyFailed          = "placeholder.failed"
	KeyCancelled       = "placeholder.cancelled"
	KeyStillParsing    = "upload.still_parsing"
	KeyNotReady        = "upload.not_ready"
	KeyParsingProgress = "upload.progress"
	KeyConfirmed       = "upload.confirmed"
)

// Translator looks up format strings by key and falls back to the key.
type Translator struct {
	lang         string
	translations map[string]string
	fallback     map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys. English is always loaded
// as the fallback for keys the requested locale lacks.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	en, err := readCatalog(fsys, "en")
	if err != nil {
		return nil, err
	}
	if langCode == "" || langCode == "en" {
		return &Translator{lang: "en", translations: en}, nil
	}
	tr, err := readCatalog(fsys, langCode)
	if err != nil {
		return nil, err
	}
	return &Translator{lang: langCode, translations: tr, fallback: en}, nil
}

// MustDefault returns the embedded catalog for langCode, falling back to English.
func MustDefault(langCode string) *Translator {
	t, err := NewTranslator(LocalesFS, langCode)
	if err == nil {
		return t
	}
	t, err = NewTranslator(LocalesFS, "en")
	if err != nil {
		panic(err)
	}
	return t
}

func readCatalog(fsys fs.FS, langCode string) (map[string]string, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (map[string]string, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return translations, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	tr, err := parseCatalog(data)
	if err != nil {
		return nil, err
	}
	return &Translator{lang: "test", translations: tr}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T (Translate) formats the message for key with args.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		format, ok = t.fallback[key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
