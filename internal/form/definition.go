// internal/form/definition.go
//
// Concierge forms: YAML rule loader and registry.
//
// Context
//   Each public form is declared in a YAML file.  The file names the form,
//   its variant, the honeypot and captcha field names, the outbound subject
//   templates, and the ordered field list with limits and allowed options.
//   The rule set is data, versioned with the file, so a limit change never
//   needs a code change.
//
// Workflow
//   •  Structs mirror the YAML schema: FormDef → FieldDef.
//   •  The files under rules/ are embedded and registered at init.
//   •  RegisterForms walks operator directories and replaces built-in
//      definitions that share an ID.
//   •  GetFormDef offers safe, read-only access to a parsed form by ID.
//
// Style
//   Full sentences, two spaces after periods, Oxford commas.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Field types understood by the validator.
const (
	TypeText        = "text"
	TypeTextarea    = "textarea"
	TypeEmail       = "email"
	TypePhone       = "phone"
	TypePostal      = "postal"
	TypeSelect      = "select"
	TypeMultiSelect = "multiselect"
)

var knownTypes = map[string]bool{
	TypeText:        true,
	TypeTextarea:    true,
	TypeEmail:       true,
	TypePhone:       true,
	TypePostal:      true,
	TypeSelect:      true,
	TypeMultiSelect: true,
}

// kindFields lists the wire names each variant maps onto its typed
// Submission.  A definition of that kind must declare all of them.
var kindFields = map[Kind][]string{
	KindContact: {"name", "email", "message"},
	KindIntake:  {"firstName", "lastName", "email", "services"},
}

const (
	defaultCaptchaMessage  = "Captcha required"
	defaultRequiredMessage = "Required fields are missing."
)

//go:embed rules/*.yaml
var builtinRules embed.FS

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// FormDef represents one form definition loaded from YAML.
type FormDef struct {
	ID              string     `yaml:"id"`               // Endpoint and "type" discriminator.
	Kind            Kind       `yaml:"kind"`             // contact or intake.
	Version         string     `yaml:"version"`          // Rule set revision, informational.
	Title           string     `yaml:"title"`            // Display title, optional.
	Honeypot        string     `yaml:"honeypot"`         // Hidden field name, optional.
	Captcha         string     `yaml:"captcha"`          // Token field name, optional.
	CaptchaMessage  string     `yaml:"captcha_message"`  // Message when the token is missing.
	RequiredMessage string     `yaml:"required_message"` // Message when a required field is empty.
	Subject         string     `yaml:"subject"`          // text/template over the Submission.
	FromName        string     `yaml:"from_name"`        // text/template over the Submission.
	Fields          []FieldDef `yaml:"fields"`

	subject  *template.Template
	fromName *template.Template
}

// FieldDef describes a single accepted field.  Name is the key the client
// posts; Label is the key the mail relay receives.
type FieldDef struct {
	Name        string   `yaml:"name"`        // Submission key.  Required.
	Label       string   `yaml:"label"`       // Outbound key.  Required.
	Type        string   `yaml:"type"`        // See the Type* constants.
	Required    bool     `yaml:"required"`    // True if input is mandatory.
	MaxLength   int      `yaml:"maxlength"`   // Per value; per item for multiselect.
	Options     []string `yaml:"options"`     // Allowed values for select types.
	Default     string   `yaml:"default"`     // Value used when a select is absent.
	Placeholder string   `yaml:"placeholder"` // Outbound text for an empty optional.
	ErrorMsg    string   `yaml:"error"`       // Custom error message, optional.
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*FormDef)
)

func init() {
	if err := registerFS(builtinRules, "rules"); err != nil {
		panic("form: built-in rules: " + err.Error())
	}
}

// GetFormDef returns a parsed FormDef by ID.  The boolean is false when the
// ID is unknown.
func GetFormDef(id string) (*FormDef, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fd, ok := registry[id]
	return fd, ok
}

// IDs returns the registered form IDs in sorted order.
func IDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// LoadFormDef parses one YAML file, validates its structure, and returns a
// populated FormDef.  It never mutates the registry.
func LoadFormDef(path string) (*FormDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	return parseFormDef(raw, path)
}

// RegisterForms walks each directory and registers every "*.yaml" file.
// Later directories win over earlier ones, and all of them win over the
// built-in rules.  A missing directory is not an error.
func RegisterForms(dirs []string) error {
	if len(dirs) == 0 {
		return errors.New("RegisterForms: no directories provided")
	}

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
				return nil
			}

			fd, err := LoadFormDef(path)
			if err != nil {
				return err
			}
			register(fd)
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func registerFS(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		fd, err := parseFormDef(raw, path)
		if err != nil {
			return err
		}
		register(fd)
		return nil
	})
}

func register(fd *FormDef) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[fd.ID] = fd
}

func parseFormDef(raw []byte, path string) (*FormDef, error) {
	var fd FormDef
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&fd); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", path, err)
	}
	if err := validateFormDef(&fd, path); err != nil {
		return nil, err
	}
	return &fd, nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

// validateFormDef enforces structural rules that cannot be expressed via YAML
// tags alone and compiles the subject templates.
func validateFormDef(fd *FormDef, path string) error {
	if fd.ID == "" {
		return fmt.Errorf("form definition %s: missing required 'id'", path)
	}
	wire, ok := kindFields[fd.Kind]
	if !ok {
		return fmt.Errorf("form definition %s: unknown kind %q", path, fd.Kind)
	}
	if len(fd.Fields) == 0 {
		return fmt.Errorf("form definition %s: must have 'fields'", path)
	}
	if fd.CaptchaMessage == "" {
		fd.CaptchaMessage = defaultCaptchaMessage
	}
	if fd.RequiredMessage == "" {
		fd.RequiredMessage = defaultRequiredMessage
	}

	names := make(map[string]struct{}, len(fd.Fields))
	for i := range fd.Fields {
		f := &fd.Fields[i]
		if err := validateField(f, path); err != nil {
			return err
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", path, f.Name)
		}
		names[f.Name] = struct{}{}
	}

	for _, n := range wire {
		if _, ok := names[n]; !ok {
			return fmt.Errorf("form %s: kind %s requires field '%s'", path, fd.Kind, n)
		}
	}
	for _, reserved := range []string{fd.Honeypot, fd.Captcha} {
		if _, clash := names[reserved]; reserved != "" && clash {
			return fmt.Errorf("form %s: '%s' is reserved and cannot be a field", path, reserved)
		}
	}

	var err error
	if fd.subject, err = compileTemplate(fd, "subject", fd.Subject, path); err != nil {
		return err
	}
	if fd.fromName, err = compileTemplate(fd, "from_name", fd.FromName, path); err != nil {
		return err
	}
	return nil
}

// validateField confirms that essential attributes are present and sane.
func validateField(f *FieldDef, path string) error {
	if f.Name == "" {
		return fmt.Errorf("form %s: field missing 'name'", path)
	}
	if f.Label == "" {
		return fmt.Errorf("form %s: field '%s' missing 'label'", path, f.Name)
	}
	if !knownTypes[f.Type] {
		return fmt.Errorf("form %s: field '%s' has unknown type %q", path, f.Name, f.Type)
	}
	if f.MaxLength <= 0 {
		return fmt.Errorf("form %s: field '%s' needs a positive maxlength", path, f.Name)
	}

	if f.Type == TypeSelect || f.Type == TypeMultiSelect {
		if len(f.Options) == 0 {
			return fmt.Errorf("form %s: field '%s' needs 'options'", path, f.Name)
		}
		if f.Default != "" && !optionAllowed(f.Options, f.Default) {
			return fmt.Errorf("form %s: field '%s' default %q is not an option", path, f.Name, f.Default)
		}
	}
	return nil
}

// compileTemplate parses src and dry-runs it against the zero Submission of
// the form's kind so a misspelled field fails at load time.
func compileTemplate(fd *FormDef, name, src, path string) (*template.Template, error) {
	if src == "" {
		return nil, fmt.Errorf("form %s: missing '%s'", path, name)
	}
	t, err := template.New(fd.ID + "/" + name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("form %s: %s template: %w", path, name, err)
	}
	if _, err := render(t, zeroSubmission(fd.Kind)); err != nil {
		return nil, fmt.Errorf("form %s: %s template: %w", path, name, err)
	}
	return t, nil
}

func render(t *template.Template, sub Submission) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, sub); err != nil {
		return "", err
	}
	return b.String(), nil
}
