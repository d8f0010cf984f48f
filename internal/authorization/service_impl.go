package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSync     = "sync"
	ObjectInvoice  = "invoice"
	ObjectCustomer = "customer"
	ObjectProduct  = "product"
	ObjectAPIKey   = "api_key"
)

const (
	ActionSyncRead  = "sync.read"
	ActionSyncWrite = "sync.write"

	ActionInvoiceView   = "invoice.view"
	ActionInvoiceIssue  = "invoice.issue"
	ActionInvoicePay    = "invoice.pay"
	ActionInvoiceCancel = "invoice.cancel"
	ActionInvoiceVoid   = "invoice.void"
	ActionInvoiceDelete = "invoice.delete"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"
)

const policyStoreDB = "db"

type EnforcerParams struct {
	fx.In

	DB  *gorm.DB
	Cfg config.Config
}

// NewEnforcer builds the policy enforcer. Policies are seeded on every start;
// with AUTHZ_POLICY_STORE=db they are also persisted through gorm-adapter so
// operators can add rules without a deploy.
func NewEnforcer(p EnforcerParams) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if p.Cfg.Authz.PolicyStore == policyStoreDB {
		adapter, err := gormadapter.NewAdapterByDB(p.DB)
		if err != nil {
			return nil, err
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
		if err != nil {
			return nil, err
		}
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, err
		}
	}
	enforcer.EnableAutoBuildRoleLinks(true)

	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Audit    auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	audit    auditdomain.Service
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		audit:    p.Audit,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal apikeydomain.Principal, object, action string) error {
	if principal.OrgID == 0 {
		return ErrInvalidOrganization
	}
	keyID := strings.TrimSpace(principal.KeyID)
	if keyID == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := "api_key:" + keyID
	domain := fmt.Sprintf("org:%s", principal.OrgID)
	if err := s.ensureGrouping(subject, principal.Scopes, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, principal, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping syncs the subject's roles in domain with the key's scopes.
// Scopes removed from a key since the last request are dropped.
func (s *ServiceImpl) ensureGrouping(subject string, scopes []string, domain string) error {
	wanted := make(map[string]bool, len(scopes))
	for _, scope := range scopes {
		wanted[roleForScope(scope)] = true
	}

	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if wanted[rule[1]] {
			delete(wanted, rule[1])
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	for role := range wanted {
		if _, err := s.enforcer.AddGroupingPolicy(subject, role, domain); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, principal apikeydomain.Principal, object, action string) {
	s.log.Info("authorization denied",
		zap.String("org_id", principal.OrgID.String()),
		zap.String("key_id", principal.KeyID),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, principal.OrgID, auditdomain.Entry{
		Action:     "authorization.denied",
		TargetType: "authorization",
		TargetID:   object,
		Metadata: map[string]any{
			"action": action,
			"key_id": principal.KeyID,
			"scopes": principal.Scopes,
		},
	})
	if err != nil {
		s.log.Warn("failed to audit authorization denial", zap.Error(err))
	}
}

func roleForScope(scope string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(scope))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	reader := roleForScope(apikeydomain.ScopeSyncRead)
	writer := roleForScope(apikeydomain.ScopeSyncWrite)
	invoices := roleForScope(apikeydomain.ScopeInvoices)
	admin := roleForScope(apikeydomain.ScopeAdmin)

	policies := [][]string{
		// Device read access
		{reader, ObjectSync, ActionSyncRead},
		{reader, ObjectInvoice, ActionInvoiceView},

		// Device write access
		{writer, ObjectSync, ActionSyncWrite},

		// Invoice lifecycle endpoints
		{invoices, ObjectInvoice, ActionInvoiceView},
		{invoices, ObjectInvoice, ActionInvoiceIssue},
		{invoices, ObjectInvoice, ActionInvoicePay},
		{invoices, ObjectInvoice, ActionInvoiceCancel},
		{invoices, ObjectInvoice, ActionInvoiceVoid},
		{invoices, ObjectInvoice, ActionInvoiceDelete},

		// Admin keys can do everything
		{admin, ObjectSync, ActionSyncRead},
		{admin, ObjectSync, ActionSyncWrite},
		{admin, ObjectInvoice, ActionInvoiceView},
		{admin, ObjectInvoice, ActionInvoiceIssue},
		{admin, ObjectInvoice, ActionInvoicePay},
		{admin, ObjectInvoice, ActionInvoiceCancel},
		{admin, ObjectInvoice, ActionInvoiceVoid},
		{admin, ObjectInvoice, ActionInvoiceDelete},
		{admin, ObjectAPIKey, ActionAPIKeyView},
		{admin, ObjectAPIKey, ActionAPIKeyCreate},
		{admin, ObjectAPIKey, ActionAPIKeyRotate},
		{admin, ObjectAPIKey, ActionAPIKeyRevoke},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
