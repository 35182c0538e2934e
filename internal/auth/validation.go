package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const (
	maxNameLength = 100
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate returns a field -> problem map, empty when the request is valid.
func (req *RegisterRequest) Validate() map[string]string {
	problems := map[string]string{}

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		problems["name"] = "name is required"
	case utf8.RuneCountInString(name) > maxNameLength:
		problems["name"] = "name must be at most 100 characters"
	}

	email := strings.TrimSpace(req.Email)
	switch {
	case email == "":
		problems["email"] = "email is required"
	case !emailRegex.MatchString(email):
		problems["email"] = "invalid email format"
	}

	switch {
	case req.Password == "":
		problems["password"] = "password is required"
	case len(req.Password) > maxPasswordBytes:
		problems["password"] = "password must be at most 72 bytes"
	}

	return problems
}

func (req *LoginRequest) Validate() map[string]string {
	problems := map[string]string{}
	if strings.TrimSpace(req.Email) == "" {
		problems["email"] = "email is required"
	}
	if req.Password == "" {
		problems["password"] = "password is required"
	}
	return problems
}
