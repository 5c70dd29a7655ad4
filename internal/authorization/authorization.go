// Package authorization decides which role may invoke which engine operation.
// Whether the operation is valid for the document's current state is left to
// the domain services.
package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/fuelledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrderSlip       = "order_slip"
	ObjectDeliveryReceipt = "delivery_receipt"
	ObjectRecalculation   = "recalculation"
	ObjectPlacement       = "placement"
	ObjectLedger          = "ledger"
	ObjectSequence        = "sequence"
)

const (
	ActionOrderSlipView       = "order_slip.view"
	ActionOrderSlipCreate     = "order_slip.create"
	ActionOrderSlipTransition = "order_slip.transition"

	ActionReceiptView    = "delivery_receipt.view"
	ActionReceiptCreate  = "delivery_receipt.create"
	ActionReceiptApprove = "delivery_receipt.approve"
	ActionReceiptDeliver = "delivery_receipt.deliver"
	ActionReceiptInvoice = "delivery_receipt.invoice"
	ActionReceiptCancel  = "delivery_receipt.cancel"
	ActionReceiptVoid    = "delivery_receipt.void"
	ActionReceiptDelete  = "delivery_receipt.delete"

	ActionRecalculationView  = "recalculation.view"
	ActionRecalculationApply = "recalculation.apply"

	ActionPlacementView    = "placement.view"
	ActionPlacementManage  = "placement.manage"
	ActionPlacementDispose = "placement.dispose"

	ActionLedgerView   = "ledger.view"
	ActionSequenceView = "sequence.view"
)

// Roles known to the policy seed.
const (
	RoleClerk    = "clerk"
	RoleOM       = "om"
	RoleCNC      = "cnc"
	RoleFM       = "fm"
	RoleTreasury = "treasury"
	RoleAdmin    = "admin"
)

var (
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	Authorize(ctx context.Context, role, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Config   *config.BusinessConfigHolder `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	config   *config.BusinessConfigHolder
}

// NewEnforcer loads policies from the casbin_rule table and seeds the
// built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		config:   p.Config,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role, object, action string) error {
	if s.config != nil && !s.config.Get().Authorization.Enabled {
		return nil
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func subject(role string) string {
	return fmt.Sprintf("role:%s", role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Clerks prepare documents
		{subject(RoleClerk), ObjectOrderSlip, ActionOrderSlipView},
		{subject(RoleClerk), ObjectOrderSlip, ActionOrderSlipCreate},
		{subject(RoleClerk), ObjectDeliveryReceipt, ActionReceiptView},
		{subject(RoleClerk), ObjectDeliveryReceipt, ActionReceiptCreate},
		{subject(RoleClerk), ObjectDeliveryReceipt, ActionReceiptDeliver},
		{subject(RoleClerk), ObjectSequence, ActionSequenceView},

		// Operations manager
		{subject(RoleOM), ObjectOrderSlip, ActionOrderSlipView},
		{subject(RoleOM), ObjectOrderSlip, ActionOrderSlipTransition},
		{subject(RoleOM), ObjectDeliveryReceipt, ActionReceiptView},
		{subject(RoleOM), ObjectDeliveryReceipt, ActionReceiptApprove},
		{subject(RoleOM), ObjectDeliveryReceipt, ActionReceiptCancel},
		{subject(RoleOM), ObjectDeliveryReceipt, ActionReceiptDelete},

		// Credit and collection
		{subject(RoleCNC), ObjectOrderSlip, ActionOrderSlipView},
		{subject(RoleCNC), ObjectDeliveryReceipt, ActionReceiptView},
		{subject(RoleCNC), ObjectDeliveryReceipt, ActionReceiptInvoice},
		{subject(RoleCNC), ObjectDeliveryReceipt, ActionReceiptVoid},
		{subject(RoleCNC), ObjectLedger, ActionLedgerView},

		// Finance manager
		{subject(RoleFM), ObjectOrderSlip, ActionOrderSlipView},
		{subject(RoleFM), ObjectDeliveryReceipt, ActionReceiptView},
		{subject(RoleFM), ObjectRecalculation, ActionRecalculationView},
		{subject(RoleFM), ObjectRecalculation, ActionRecalculationApply},
		{subject(RoleFM), ObjectLedger, ActionLedgerView},

		// Treasury
		{subject(RoleTreasury), ObjectPlacement, ActionPlacementView},
		{subject(RoleTreasury), ObjectPlacement, ActionPlacementManage},
		{subject(RoleTreasury), ObjectPlacement, ActionPlacementDispose},
		{subject(RoleTreasury), ObjectLedger, ActionLedgerView},
		{subject(RoleTreasury), ObjectSequence, ActionSequenceView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	for _, role := range []string{RoleClerk, RoleOM, RoleCNC, RoleFM, RoleTreasury} {
		if _, err := enforcer.AddGroupingPolicy(subject(RoleAdmin), subject(role)); err != nil {
			return err
		}
	}
	return nil
}
