// internal/form/submission.go
//
// Concierge forms: typed submissions.
//
// A Submission exists for one request only.  It is built from the sanitized
// values after every rule passed, handed to the payload builder, and dropped.

package form

// Kind tags the Submission variant.
type Kind string

const (
	KindContact Kind = "contact"
	KindIntake  Kind = "intake"
)

// Submission is implemented by *Contact and *Intake.
type Submission interface {
	Kind() Kind
	// ReplyTo is the submitter's address.
	ReplyTo() string
	// Token is the opaque captcha proof forwarded to the mail relay.
	Token() string
}

// Contact is the quick inquiry variant.
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Message string

	CaptchaToken string
}

func (c *Contact) Kind() Kind      { return KindContact }
func (c *Contact) ReplyTo() string { return c.Email }
func (c *Contact) Token() string   { return c.CaptchaToken }

// Intake is the client intake variant.  Services holds only values from the
// allowed set, in submission order, without duplicates.
type Intake struct {
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	PreferredContact string
	Address          string
	City             string
	State            string
	ZIP              string
	Services         []string
	Timeline         string
	Budget           string
	ReferralSource   string
	AdditionalInfo   string

	CaptchaToken string
}

func (i *Intake) Kind() Kind      { return KindIntake }
func (i *Intake) ReplyTo() string { return i.Email }
func (i *Intake) Token() string   { return i.CaptchaToken }

// FullName joins the first and last name.
func (i *Intake) FullName() string { return i.FirstName + " " + i.LastName }

// newSubmission maps sanitized values onto the variant for kind.
func newSubmission(kind Kind, vals map[string]string, lists map[string][]string, token string) Submission {
	switch kind {
	case KindContact:
		return &Contact{
			Name:         vals["name"],
			Email:        vals["email"],
			Phone:        vals["phone"],
			Message:      vals["message"],
			CaptchaToken: token,
		}
	case KindIntake:
		return &Intake{
			FirstName:        vals["firstName"],
			LastName:         vals["lastName"],
			Email:            vals["email"],
			Phone:            vals["phone"],
			PreferredContact: vals["preferredContact"],
			Address:          vals["address"],
			City:             vals["city"],
			State:            vals["state"],
			ZIP:              vals["zip"],
			Services:         lists["services"],
			Timeline:         vals["timeline"],
			Budget:           vals["budget"],
			ReferralSource:   vals["referralSource"],
			AdditionalInfo:   vals["additionalInfo"],
			CaptchaToken:     token,
		}
	}
	return nil
}

func zeroSubmission(kind Kind) Submission {
	return newSubmission(kind, nil, nil, "")
}
