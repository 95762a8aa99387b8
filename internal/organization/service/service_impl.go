package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/hirelens/hirelens/internal/clock"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	orgdomain "github.com/hirelens/hirelens/internal/organization/domain"
	"github.com/hirelens/hirelens/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Node      *snowflake.Node
	Repo      orgdomain.Repository
	Lifecycle lifecycledomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	node      *snowflake.Node
	repo      orgdomain.Repository
	lifecycle lifecycledomain.Service
}

func NewService(p ServiceParam) orgdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("organization.service"),
		clock:     p.Clock,
		node:      p.Node,
		repo:      p.Repo,
		lifecycle: p.Lifecycle,
	}
}

// Create inserts the org together with its status=new lifecycle record and
// the materialized free plan, all in one commit.
func (s *Service) Create(ctx context.Context, req orgdomain.CreateOrganizationRequest) (*orgdomain.OrganizationResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, orgdomain.ErrInvalidName
	}

	now := s.clock.Now()
	org := orgdomain.Organization{
		ID:           s.node.Generate(),
		Name:         name,
		Slug:         slug.Make(name),
		SupportEmail: strings.TrimSpace(req.SupportEmail),
		EmailDomains: normalizeDomains(req.EmailDomains),
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySlug(ctx, tx, org.Slug)
		if err != nil {
			return err
		}
		if existing != nil {
			return orgdomain.ErrSlugTaken
		}
		if err := s.repo.Create(ctx, tx, &org); err != nil {
			return err
		}
		return s.lifecycle.CreateTx(ctx, tx, org.ID)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, orgdomain.ErrSlugTaken
		}
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
	)
	return &orgdomain.OrganizationResponse{
		ID:           org.ID.String(),
		Name:         org.Name,
		Slug:         org.Slug,
		SupportEmail: org.SupportEmail,
		EmailDomains: org.EmailDomains,
		Status:       string(lifecycledomain.StatusNew),
	}, nil
}

func normalizeDomains(domains []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *Service) GetByID(ctx context.Context, id string) (*orgdomain.OrganizationResponse, error) {
	raw := strings.TrimSpace(id)
	if raw == "" {
		return nil, orgdomain.ErrInvalidOrganization
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, orgdomain.ErrInvalidOrganization
	}

	org, err := s.repo.FindByID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, orgdomain.ErrOrganizationNotFound
	}

	resp := orgdomain.OrganizationResponse{
		ID:           org.ID.String(),
		Name:         org.Name,
		Slug:         org.Slug,
		SupportEmail: org.SupportEmail,
		EmailDomains: org.EmailDomains,
	}
	if current, err := s.lifecycle.EnsureCurrent(ctx, org.ID); err == nil {
		resp.Status = string(current.Status)
		resp.Tier = string(current.Tier)
	}
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]orgdomain.OrganizationResponse, error) {
	rows, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	out := make([]orgdomain.OrganizationResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, orgdomain.OrganizationResponse{
			ID:           row.ID.String(),
			Name:         row.Name,
			Slug:         row.Slug,
			SupportEmail: row.SupportEmail,
			EmailDomains: row.EmailDomains,
		})
	}
	return out, nil
}
