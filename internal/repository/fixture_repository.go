package repository

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/validator"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a test or user does not exist.
var ErrNotFound = errors.New("not found")

// Fixture is the sandbox seed file: accounts and tests with answer keys.
type Fixture struct {
	Users []FixtureUser `yaml:"users" validate:"dive"`
	Tests []FixtureTest `yaml:"tests" validate:"required,min=1,dive"`
}

// FixtureUser is an account. Password is hashed when the catalog is built;
// PasswordHash is used as is.
type FixtureUser struct {
	ID           string     `yaml:"id" validate:"required"`
	Name         string     `yaml:"name" validate:"required"`
	Email        string     `yaml:"email" validate:"required,email"`
	Role         model.Role `yaml:"role" validate:"omitempty,oneof=student instructor admin"`
	Password     string     `yaml:"password" validate:"required_without=PasswordHash"`
	PasswordHash string     `yaml:"password_hash"`
}

// FixtureTest is a test with its questions.
type FixtureTest struct {
	model.Test `yaml:",inline"`
	Questions  []FixtureQuestion `yaml:"questions" validate:"dive"`
}

// FixtureQuestion is a question with its answer key.
type FixtureQuestion struct {
	model.Question `yaml:",inline"`
	Options        []string `yaml:"options"`
	Answer         string   `yaml:"answer" validate:"required"`
	Explanation    string   `yaml:"explanation"`
}

// LoadFixture reads and validates a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := validator.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	if err := f.check(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

// check enforces the rules the tag validator cannot express.
func (f *Fixture) check() error {
	tests := map[string]bool{}
	for _, t := range f.Tests {
		if t.ID == "" {
			return errors.New("test without id")
		}
		if tests[t.ID] {
			return fmt.Errorf("duplicate test %q", t.ID)
		}
		tests[t.ID] = true

		questions := map[string]bool{}
		for _, q := range t.Questions {
			if q.ID == "" {
				return fmt.Errorf("test %q: question without id", t.ID)
			}
			if questions[q.ID] {
				return fmt.Errorf("test %q: duplicate question %q", t.ID, q.ID)
			}
			questions[q.ID] = true

			if q.QuestionType != model.QuestionTypeText && q.QuestionType != model.QuestionTypeMCQ {
				return fmt.Errorf("question %q: unknown type %q", q.ID, q.QuestionType)
			}
			if q.QuestionType == model.QuestionTypeMCQ {
				idx := model.OptionIndex(q.Answer)
				if idx < 0 || idx >= len(q.Options) {
					return fmt.Errorf("question %q: answer %q is not one of %d options", q.ID, q.Answer, len(q.Options))
				}
			}
		}
	}

	emails := map[string]bool{}
	for _, u := range f.Users {
		key := strings.ToLower(u.Email)
		if emails[key] {
			return fmt.Errorf("duplicate user email %q", u.Email)
		}
		emails[key] = true
	}
	return nil
}

// UserRecord is an account with its password hash.
type UserRecord struct {
	model.User
	PasswordHash string
}

// AnswerKey is the correct answer of one question.
type AnswerKey struct {
	Answer      string
	Explanation string
}

type catalogTest struct {
	test      model.Test
	questions []model.Question
	keys      map[string]AnswerKey
}

// Catalog is the read-only set of tests and accounts served by the sandbox.
type Catalog struct {
	order   []string
	tests   map[string]*catalogTest
	users   map[string]*UserRecord
	byEmail map[string]*UserRecord
}

// NewCatalog builds a Catalog from f. hash turns plain fixture passwords
// into stored hashes.
func NewCatalog(f *Fixture, hash func(password string) (string, error)) (*Catalog, error) {
	c := &Catalog{
		tests:   make(map[string]*catalogTest, len(f.Tests)),
		users:   make(map[string]*UserRecord, len(f.Users)),
		byEmail: make(map[string]*UserRecord, len(f.Users)),
	}

	for _, ft := range f.Tests {
		ct := &catalogTest{
			test:      ft.Test,
			questions: make([]model.Question, 0, len(ft.Questions)),
			keys:      make(map[string]AnswerKey, len(ft.Questions)),
		}
		total := 0
		for _, fq := range ft.Questions {
			q := fq.Question
			if q.Marks <= 0 {
				q.Marks = 1
			}
			q.Options = nil
			for _, text := range fq.Options {
				q.Options = append(q.Options, model.Option{Text: text})
			}
			total += q.Marks
			ct.questions = append(ct.questions, q)
			ct.keys[q.ID] = AnswerKey{Answer: fq.Answer, Explanation: fq.Explanation}
		}
		ct.test.TotalMarks = total
		ct.test.QuestionCount = len(ct.questions)
		c.tests[ct.test.ID] = ct
		c.order = append(c.order, ct.test.ID)
	}

	for _, fu := range f.Users {
		rec := &UserRecord{
			User: model.User{
				ID:    fu.ID,
				Name:  fu.Name,
				Email: fu.Email,
				Role:  fu.Role,
			},
			PasswordHash: fu.PasswordHash,
		}
		if rec.Role == "" {
			rec.Role = model.RoleStudent
		}
		if rec.PasswordHash == "" {
			h, err := hash(fu.Password)
			if err != nil {
				return nil, fmt.Errorf("hash password for %s: %w", fu.Email, err)
			}
			rec.PasswordHash = h
		}
		c.users[rec.ID] = rec
		c.byEmail[strings.ToLower(rec.Email)] = rec
	}

	return c, nil
}

// ListTests returns all tests in fixture order.
func (c *Catalog) ListTests() []model.Test {
	out := make([]model.Test, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tests[id].test)
	}
	return out
}

// GetTest returns one test.
func (c *Catalog) GetTest(id string) (*model.Test, error) {
	ct, ok := c.tests[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := ct.test
	return &t, nil
}

// Questions returns the questions of a test without answer keys.
func (c *Catalog) Questions(testID string) ([]model.Question, error) {
	ct, ok := c.tests[testID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]model.Question, len(ct.questions))
	copy(out, ct.questions)
	return out, nil
}

// AnswerKeys returns the answer key of every question of a test.
func (c *Catalog) AnswerKeys(testID string) (map[string]AnswerKey, error) {
	ct, ok := c.tests[testID]
	if !ok {
		return nil, ErrNotFound
	}
	return ct.keys, nil
}

// UserByEmail looks an account up case-insensitively.
func (c *Catalog) UserByEmail(email string) (*UserRecord, error) {
	u, ok := c.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

// UserByID returns an account.
func (c *Catalog) UserByID(id string) (*UserRecord, error) {
	u, ok := c.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}
