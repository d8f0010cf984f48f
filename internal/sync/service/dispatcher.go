package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/billbook/internal/config"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	idempotencydomain "github.com/smallbiznis/billbook/internal/idempotency/domain"
	idempotencysvc "github.com/smallbiznis/billbook/internal/idempotency/service"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	"github.com/smallbiznis/billbook/internal/ratelimit"
	"github.com/smallbiznis/billbook/internal/sync/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errHandlerPanic = errors.New("mutation_handler_panic")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	Invoices    invoicedomain.Service
	Customers   customerdomain.Service
	Products    productdomain.Service
	Idempotency idempotencydomain.Service
	Limiter     *ratelimit.SyncLimiter `optional:"true"`
	Metrics     *metrics.Metrics       `optional:"true"`
}

type handlerFunc func(ctx context.Context, m domain.Mutation) (any, error)

type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	invoices    invoicedomain.Service
	customers   customerdomain.Service
	products    productdomain.Service
	idempotency idempotencydomain.Service
	limiter     *ratelimit.SyncLimiter
	metrics     *metrics.Metrics
	validate    *validator.Validate
	handlers    map[domain.MutationType]handlerFunc

	batchTimeout time.Duration
	retries      int
}

func NewDispatcher(p Params) domain.Dispatcher {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	retries := p.Cfg.Sync.SerializeRetries
	if retries < 0 {
		retries = 0
	}
	d := &Dispatcher{
		db:           p.DB,
		log:          p.Log.Named("sync.dispatcher"),
		invoices:     p.Invoices,
		customers:    p.Customers,
		products:     p.Products,
		idempotency:  p.Idempotency,
		limiter:      p.Limiter,
		metrics:      p.Metrics,
		validate:     validate,
		batchTimeout: p.Cfg.Sync.BatchTimeout,
		retries:      retries,
	}
	d.handlers = d.routes()
	return d
}

func (d *Dispatcher) Process(ctx context.Context, orgID snowflake.ID, mutations []domain.Mutation) []domain.Result {
	results := make([]domain.Result, len(mutations))
	if len(mutations) == 0 {
		return results
	}
	d.metrics.RecordBatch(ctx, len(mutations))

	batchCtx := orgcontext.WithOrgID(ctx, orgID)
	if d.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(batchCtx, d.batchTimeout)
		defer cancel()
	}

	failed := 0
	for i, m := range mutations {
		if err := batchCtx.Err(); err != nil {
			// Unacknowledged mutations stay replayable under their keys.
			results[i] = domain.Failure(m.ID, domain.Classify(err))
		} else {
			results[i] = d.apply(batchCtx, orgID, m)
		}
		if !results[i].Succeeded() {
			failed++
		}
		d.metrics.RecordMutation(ctx, string(m.Type.Normalize()), results[i].Outcome())
	}

	d.log.Info("sync batch processed",
		zap.String("org_id", orgID.String()),
		zap.Int("mutations", len(mutations)),
		zap.Int("failed", failed),
	)
	return results
}

// apply resolves one mutation: cached replay, or execution plus save in a
// single transaction.
func (d *Dispatcher) apply(ctx context.Context, orgID snowflake.ID, m domain.Mutation) domain.Result {
	key := strings.TrimSpace(m.IdempotencyKey)
	log := d.log.With(
		zap.String("org_id", orgID.String()),
		zap.String("mutation_id", m.ID),
		zap.String("mutation_type", string(m.Type)),
	)

	var fingerprint string
	if key != "" {
		token, ok, err := d.limiter.TryLockMutation(ctx, orgID.String(), key)
		switch {
		case err != nil:
			log.Warn("mutation lock unavailable, continuing without it", zap.Error(err))
		case !ok:
			return domain.Failure(m.ID, domain.Classify(domain.ErrMutationInProgress))
		default:
			defer func() {
				if err := d.limiter.ReleaseMutation(context.WithoutCancel(ctx), orgID.String(), key, token); err != nil {
					log.Warn("failed to release mutation lock", zap.Error(err))
				}
			}()
		}

		fingerprint = idempotencysvc.Fingerprint(m.Data)
		record, err := d.idempotency.Lookup(ctx, orgID, key, fingerprint)
		if err != nil {
			return d.failure(log, m, err)
		}
		if record != nil {
			return domain.Success(m.ID, json.RawMessage(record.Result), true)
		}
	}

	handler, ok := d.handlers[m.Type.Normalize()]
	if !ok {
		return domain.Failure(m.ID, domain.Classify(domain.ErrUnknownMutationType))
	}

	data, err := d.execute(ctx, orgID, m, handler, key, fingerprint)
	if err != nil {
		return d.failure(log, m, err)
	}
	return domain.Success(m.ID, data, false)
}

func (d *Dispatcher) execute(ctx context.Context, orgID snowflake.ID, m domain.Mutation, handler handlerFunc, key, fingerprint string) (data json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("mutation handler panicked",
				zap.String("mutation_id", m.ID),
				zap.String("mutation_type", string(m.Type)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			data, err = nil, fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()

	run := func() error {
		return pkgdb.WithTransaction(ctx, d.db, func(ctx context.Context) error {
			out, err := handler(ctx, m)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(out)
			if err != nil {
				return err
			}
			if key != "" {
				if err := d.idempotency.Save(ctx, orgID, key, idempotencydomain.SaveRequest{
					MutationType: string(m.Type.Normalize()),
					Fingerprint:  fingerprint,
					Result:       raw,
				}); err != nil {
					return err
				}
			}
			data = raw
			return nil
		})
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	err = backoff.Retry(func() error {
		err := run()
		if err != nil && !pkgdb.IsRetryableTxErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.retries)), ctx))
	return data, err
}

func (d *Dispatcher) failure(log *zap.Logger, m domain.Mutation, err error) domain.Result {
	classified := domain.Classify(err)
	if classified.Code == domain.CodeInternal {
		log.Error("mutation failed", zap.Error(err))
	} else {
		log.Debug("mutation rejected", zap.String("code", string(classified.Code)), zap.Error(err))
	}
	return domain.Failure(m.ID, classified)
}

// decode unmarshals the mutation data into out and validates it. Empty data
// leaves out at its zero value.
func (d *Dispatcher) decode(m domain.Mutation, out any) error {
	raw := bytes.TrimSpace(m.Data)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, out); err != nil {
			return &domain.PayloadError{Fields: map[string]string{"data": "malformed"}}
		}
	}
	if err := d.validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe.Namespace())] = fe.Tag()
		}
		return &domain.PayloadError{Fields: fields}
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

// entityID prefers the id inside the payload and falls back to the
// mutation's client id.
func entityID(payloadID string, m domain.Mutation) string {
	if id := strings.TrimSpace(payloadID); id != "" {
		return id
	}
	return strings.TrimSpace(m.ID)
}
