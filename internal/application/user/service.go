package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-qr-auth/internal/domain"
	"github.com/go-qr-auth/internal/pkg/validate"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldFirstName   = "first_name"
	fieldLastName    = "last_name"
	fieldEmail       = "email"
	fieldDateOfBirth = "date_of_birth"
	fieldGender      = "gender"
)

const dateLayout = "2006-01-02"

type Service interface {
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error)
}

type service struct {
	repo userStore
	now  func() time.Time
}

type ServiceDeps struct {
	UserRepo userStore
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.UserRepo, now: time.Now}
}

func (s *service) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}
	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates[fieldFirstName] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates[fieldLastName] = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		updates[fieldEmail] = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Gender != nil {
		updates[fieldGender] = *req.Gender
	}
	if req.DateOfBirth != nil {
		dob, err := time.Parse(dateLayout, *req.DateOfBirth)
		if err != nil {
			return nil, domain.InvalidRequest("dateOfBirth must be in YYYY-MM-DD format.")
		}
		if dob.After(s.now()) {
			return nil, domain.InvalidRequest("dateOfBirth cannot be in the future.")
		}
		updates[fieldDateOfBirth] = dob
	}
	if len(updates) == 0 {
		return s.GetProfile(ctx, userID)
	}
	u, err := s.repo.Update(ctx, userID, updates)
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func storeErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
}
