// Package summoner 将 REST 请求翻译为工厂部署调用，并负责
// 部署记录的落库与发布。
package summoner

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"GuildForge-Chain/internal/dao"
	xerrors "GuildForge-Chain/internal/errors"
	"GuildForge-Chain/internal/observability/alerting"
	"GuildForge-Chain/internal/observability/metrics"
	"GuildForge-Chain/internal/record"
	"GuildForge-Chain/internal/satellite"
	"GuildForge-Chain/internal/token"
	"GuildForge-Chain/pkg/logger"
)

// SubmitRequest 是对外 API 的部署请求体。地址使用 0x 前缀的
// 十六进制字符串，金额使用十进制字符串。
type SubmitRequest struct {
	Summoner             string   `json:"summoner"`
	Moloch               string   `json:"moloch"`
	CapitalToken         string   `json:"capital_token"`
	DistributionToken    string   `json:"distribution_token"`
	VestingPeriodSeconds int64    `json:"vesting_period_seconds"`
	TransmuterDist       string   `json:"transmuter_dist"`
	TrustDist            string   `json:"trust_dist"`
	MinionDist           string   `json:"minion_dist"`
	VestingRecipients    []string `json:"vesting_recipients"`
	VestingAmounts       []string `json:"vesting_amounts"`
}

// Service 负责部署请求的受理、执行与记录。
type Service struct {
	factory  *satellite.Factory
	orgs     *dao.Registry
	tokens   *token.Registry
	store    record.Store
	producer record.Producer
	alerter  alerting.Dispatcher
	log      *slog.Logger
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ServiceOption {
	return func(s *Service) {
		s.alerter = dispatcher
	}
}

// NewService 构造部署服务。
func NewService(factory *satellite.Factory, orgs *dao.Registry, tokens *token.Registry, store record.Store, producer record.Producer, opts ...ServiceOption) *Service {
	s := &Service{
		factory:  factory,
		orgs:     orgs,
		tokens:   tokens,
		store:    store,
		producer: producer,
		log:      logger.Named("summoner"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit 受理一次部署请求。校验失败或部署失败都不会留下任何
// 半成品状态；成功后记录先落库、再发布到总线。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*record.Record, error) {
	if s.factory == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "部署服务未初始化")
	}

	summonReq, err := s.resolve(req)
	if err != nil {
		metrics.ObserveDeployment(false, string(xerrors.CodeOf(err)))
		return nil, err
	}

	summoning, err := s.factory.DeployAll(ctx, *summonReq)
	if err != nil {
		metrics.ObserveDeployment(false, string(xerrors.CodeOf(err)))
		if xerrors.ShouldAlertError(err) {
			s.emitAlert(ctx, req, err)
		}
		return nil, err
	}
	metrics.ObserveDeployment(true, "")

	rec := &record.Record{
		ID:                uuid.NewString(),
		Summoner:          summonReq.Summoner.Hex(),
		Moloch:            summoning.Moloch.Hex(),
		DistributionToken: summoning.DistributionToken.Hex(),
		Minion:            summoning.Minion.Address().Hex(),
		Transmuter:        summoning.Transmuter.Address().Hex(),
		Trust:             summoning.Trust.Address().Hex(),
		TotalDistributed:  summoning.Total.String(),
		UnlockAt:          summoning.Trust.UnlockAt(),
		BlockHeight:       summoning.Height,
		CreatedAt:         summoning.Time,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		// 部署已上账，存储失败仍可从事件日志恢复记录。
		s.log.Error("保存部署记录失败", slog.Any("error", err), slog.String("record_id", rec.ID))
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存部署记录失败")
	}

	if s.producer != nil {
		if err := s.producer.Publish(ctx, rec.ID); err != nil {
			// 发布失败不回滚部署，存储仍是权威数据源。
			s.log.Error("发布部署记录失败", slog.Any("error", err), slog.String("record_id", rec.ID))
			s.emitAlert(ctx, req, xerrors.Wrap(record.CodeRecordPublish, err, "发布部署记录失败"))
		}
	}

	logger.Audit().Info("部署请求受理完成",
		slog.String("record_id", rec.ID),
		slog.String("summoner", rec.Summoner),
		slog.String("moloch", rec.Moloch),
		slog.String("total", rec.TotalDistributed),
	)
	return rec, nil
}

// Get 返回指定部署记录。
func (s *Service) Get(ctx context.Context, id string) (*record.Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "记录存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回最近的部署记录。
func (s *Service) List(ctx context.Context, limit int) ([]*record.Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "记录存储未初始化")
	}
	return s.store.List(ctx, limit)
}

// ListByMoloch 返回指定组织名下的部署记录。
func (s *Service) ListByMoloch(ctx context.Context, moloch string, limit int) ([]*record.Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "记录存储未初始化")
	}
	if !common.IsHexAddress(moloch) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "组织地址不合法")
	}
	return s.store.ListByMoloch(ctx, common.HexToAddress(moloch).Hex(), limit)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// resolve 将对外请求体解析为工厂请求，完成地址与金额校验。
func (s *Service) resolve(req SubmitRequest) (*satellite.SummonRequest, error) {
	summoner, err := parseAddress("summoner", req.Summoner)
	if err != nil {
		return nil, err
	}
	molochAddr, err := parseAddress("moloch", req.Moloch)
	if err != nil {
		return nil, err
	}
	capitalAddr, err := parseAddress("capital_token", req.CapitalToken)
	if err != nil {
		return nil, err
	}
	distributionAddr, err := parseAddress("distribution_token", req.DistributionToken)
	if err != nil {
		return nil, err
	}

	moloch, err := s.orgs.Lookup(molochAddr)
	if err != nil {
		return nil, err
	}
	capital, err := s.tokens.Lookup(capitalAddr)
	if err != nil {
		return nil, err
	}
	distribution, err := s.tokens.Lookup(distributionAddr)
	if err != nil {
		return nil, err
	}

	transmuterDist, err := parseAmount("transmuter_dist", req.TransmuterDist)
	if err != nil {
		return nil, err
	}
	trustDist, err := parseAmount("trust_dist", req.TrustDist)
	if err != nil {
		return nil, err
	}
	minionDist, err := parseAmount("minion_dist", req.MinionDist)
	if err != nil {
		return nil, err
	}

	recipients := make([]common.Address, 0, len(req.VestingRecipients))
	for _, raw := range req.VestingRecipients {
		addr, err := parseAddress("vesting_recipients", raw)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, addr)
	}
	amounts := make([]*big.Int, 0, len(req.VestingAmounts))
	for _, raw := range req.VestingAmounts {
		amount, err := parseAmount("vesting_amounts", raw)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}

	return &satellite.SummonRequest{
		Summoner:             summoner,
		Moloch:               moloch,
		CapitalToken:         capital,
		DistributionToken:    distribution,
		VestingPeriodSeconds: req.VestingPeriodSeconds,
		TransmuterDist:       transmuterDist,
		TrustDist:            trustDist,
		MinionDist:           minionDist,
		VestingRecipients:    recipients,
		VestingAmounts:       amounts,
	}, nil
}

func (s *Service) emitAlert(ctx context.Context, req SubmitRequest, cause error) {
	if s.alerter == nil {
		return
	}
	code := xerrors.CodeOf(cause)
	event := alerting.Event{
		Code:       code,
		Message:    cause.Error(),
		Severity:   xerrors.SeverityOf(cause),
		Summoner:   req.Summoner,
		Moloch:     req.Moloch,
		OccurredAt: time.Now(),
	}
	if err := s.alerter.Notify(ctx, event); err != nil {
		s.log.Error("告警通知失败", slog.Any("error", err), slog.String("moloch", req.Moloch))
	}
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "地址不合法",
			xerrors.WithMetadata("field", field))
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "金额必须是非负十进制整数",
			xerrors.WithMetadata("field", field))
	}
	return amount, nil
}
