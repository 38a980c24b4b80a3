// internal/form/payload.go
//
// Concierge forms: outbound payload for the mail relay.
//
// Context
//   The mail relay accepts an access key plus arbitrary named fields.  The
//   payload keeps insertion order so the delivered email lists fields the
//   way the form declares them, whether it is sent as JSON or multipart.
//
//   Order:  access_key, subject, from_name, replyto, <captcha field>, then
//   each FieldDef under its Label.  Empty optional fields carry the field's
//   placeholder rather than being omitted.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outbound key names expected by the mail relay.
const (
	KeyAccessKey = "access_key"
	KeySubject   = "subject"
	KeyFromName  = "from_name"
	KeyReplyTo   = "replyto"
)

// Entry is one outbound key/value pair.
type Entry struct {
	Key   string
	Value string
}

// Payload is an ordered list of outbound fields.
type Payload []Entry

// Get returns the first value stored under key.
func (p Payload) Get(key string) (string, bool) {
	for _, e := range p {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// MarshalJSON writes the payload as a JSON object in insertion order.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Redacted returns a copy of p with the access key masked, for logging.
func (p Payload) Redacted() Payload {
	out := make(Payload, len(p))
	copy(out, p)
	for i := range out {
		if out[i].Key == KeyAccessKey {
			out[i].Value = "[redacted]"
		}
	}
	return out
}

// BuildPayload renders the outbound payload for a validated, non-spam
// Result.  accessKey must be non-empty.
func BuildPayload(res *Result, accessKey string) (Payload, error) {
	if res == nil || res.Spam || res.Submission == nil {
		return nil, errors.New("form: payload requires a validated submission")
	}
	if accessKey == "" {
		return nil, errors.New("form: empty access key")
	}
	fd := res.Form

	subject, err := render(fd.subject, res.Submission)
	if err != nil {
		return nil, fmt.Errorf("form %s: render subject: %w", fd.ID, err)
	}
	fromName, err := render(fd.fromName, res.Submission)
	if err != nil {
		return nil, fmt.Errorf("form %s: render from_name: %w", fd.ID, err)
	}

	p := make(Payload, 0, len(fd.Fields)+5)
	p = append(p,
		Entry{KeyAccessKey, accessKey},
		Entry{KeySubject, subject},
		Entry{KeyFromName, fromName},
		Entry{KeyReplyTo, res.Submission.ReplyTo()},
	)
	if fd.Captcha != "" {
		p = append(p, Entry{fd.Captcha, res.Submission.Token()})
	}

	for _, f := range fd.Fields {
		var v string
		if f.Type == TypeMultiSelect {
			v = strings.Join(res.lists[f.Name], ", ")
		} else {
			v = res.values[f.Name]
		}
		if v == "" {
			v = f.Placeholder
		}
		p = append(p, Entry{f.Label, v})
	}
	return p, nil
}
