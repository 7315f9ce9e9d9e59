package authstub

import "errors"

// Development accounts created by SeedDevUsers.
const (
	DevUserEmail   = "dev@example.com"
	DevMemberEmail = "member@example.com"
	DevPassword    = "password123"
)

// SeedDevUsers adds the development accounts: an admin without 2FA and a member
// that must pass a 2FA challenge. Already present accounts are skipped.
func SeedDevUsers(s *Service) error {
	seeds := []struct {
		email, name, role string
		twoFactor         bool
	}{
		{DevUserEmail, "Dev User", "admin", false},
		{DevMemberEmail, "Member User", "member", true},
	}
	for _, u := range seeds {
		if _, err := s.AddUser(u.email, DevPassword, u.name, u.role, u.twoFactor); err != nil && !errors.Is(err, ErrUserExists) {
			return err
		}
	}
	return nil
}
