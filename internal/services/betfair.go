package services

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/replicator/betfair/client"
	"github.com/betbot/replicator/betfair/types"
	"github.com/betbot/replicator/internal/vault"
	"github.com/betbot/replicator/pkg/config"
	"github.com/betbot/replicator/pkg/persistence"
	"github.com/betbot/replicator/pkg/pnl"
	"github.com/betbot/replicator/pkg/protect"
	"github.com/betbot/replicator/pkg/syncgroup"
)

var log = logrus.WithField("component", "betfair_service")

var (
	// ErrAccountNotFound 账户不存在
	ErrAccountNotFound = errors.New("account not found")
	// ErrNotConnected 既没有会话 token 也没有可用于 re-login 的凭据
	ErrNotConnected = errors.New("account is not connected")
)

// fanOutLimit 跨账户并发调用上限
const fanOutLimit = 4

// Option 构造选项
type Option func(*options)

type options struct {
	provider *protect.Provider
	clients  client.ClientProvider
}

// WithProtectionProvider 使用给定的密钥提供者，不打开数据目录中的密钥环
func WithProtectionProvider(p *protect.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithClientProvider 替换 mTLS 客户端池（测试用）
func WithClientProvider(c client.ClientProvider) Option {
	return func(o *options) { o.clients = c }
}

// BetfairService 把保管库、证书缓存、客户端池、认证和网关组装在一起
type BetfairService struct {
	cfg *config.Config

	Accounts *vault.AccountStore
	Sessions *vault.SessionStore
	Certs    *client.CertificateCache
	Pool     *client.ClientPool
	Auth     *client.Authenticator
	Gateway  *client.Gateway
}

// NewBetfairService 按配置组装服务，并把配置中的账户写入保管库
func NewBetfairService(ctx context.Context, cfg *config.Config, opts ...Option) (*BetfairService, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	provider := o.provider
	if provider == nil {
		p, err := vault.OpenProvider(cfg.DataDir, cfg.Secrets)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	store := persistence.NewJSONFileService(cfg.DataDir)
	accounts, err := vault.NewAccountStore(store, provider)
	if err != nil {
		return nil, err
	}
	sessions, err := vault.NewSessionStore(store, provider)
	if err != nil {
		return nil, err
	}

	certs := client.NewCertificateCache(accounts)
	pool := client.NewClientPool(certs, client.WithTimeout(time.Duration(cfg.Exchange.HTTPTimeoutSeconds)*time.Second))
	var clients client.ClientProvider = pool
	if o.clients != nil {
		clients = o.clients
	}
	auth := client.NewAuthenticator(accounts, sessions, clients, cfg.Exchange.IdentityURL)

	s := &BetfairService{
		cfg:      cfg,
		Accounts: accounts,
		Sessions: sessions,
		Certs:    certs,
		Pool:     pool,
		Auth:     auth,
		Gateway:  client.NewGateway(clients, auth, client.GatewayOptionsFromConfig(cfg.Exchange)),
	}

	if cfg.Exchange.InvalidateOnChange {
		accounts.Subscribe(s.Invalidate)
	}

	seeds := make([]vault.SeedAccount, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		seeds = append(seeds, vault.SeedAccount{DisplayName: a.DisplayName, AppKey: a.AppKey})
	}
	changed, err := accounts.SeedFromConfig(ctx, seeds)
	if err != nil {
		return nil, errors.Wrap(err, "seed accounts")
	}

	log.WithFields(logrus.Fields{
		"data_dir":  cfg.DataDir,
		"seeded":    changed,
		"heuristic": client.HeuristicVersion,
		"coalesce":  cfg.Exchange.CoalesceRelogin,
	}).Info("betfair service ready")
	return s, nil
}

// Config 返回使用中的配置
func (s *BetfairService) Config() *config.Config { return s.cfg }

// Close 关闭所有账户客户端的空闲连接
func (s *BetfairService) Close(context.Context) error {
	s.Pool.Close()
	return nil
}

// Invalidate 丢弃账户的证书和客户端，下次调用时重建
func (s *BetfairService) Invalidate(displayName string) {
	s.Certs.Invalidate(displayName)
	s.Pool.Invalidate(displayName)
	log.Debugf("caches invalidated for %s", displayName)
}

// Session 组装调用会话。没有 token 但保存了凭据时返回空 token，由网关 re-login。
func (s *BetfairService) Session(ctx context.Context, displayName string) (*client.Session, error) {
	rec, err := s.Accounts.Get(ctx, displayName)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.Wrap(ErrAccountNotFound, displayName)
	}
	token, ok := s.Sessions.GetToken(ctx, displayName)
	if !ok && !rec.HasCredentials() {
		return nil, errors.Wrap(ErrNotConnected, displayName)
	}
	return &client.Session{DisplayName: rec.DisplayName, AppKey: rec.AppKey, Token: token}, nil
}

// FirstConnected 第一个有会话 token 且仍在保管库中的账户，没有时返回空字符串
func (s *BetfairService) FirstConnected(ctx context.Context) (string, error) {
	names, err := s.Sessions.Connected(ctx)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		rec, err := s.Accounts.Get(ctx, name)
		if err != nil {
			return "", err
		}
		if rec != nil {
			return rec.DisplayName, nil
		}
	}
	return "", nil
}

// Funds 查询账户资金
func (s *BetfairService) Funds(ctx context.Context, displayName string) (types.AccountFunds, error) {
	sess, err := s.Session(ctx, displayName)
	if err != nil {
		return types.AccountFunds{}, err
	}
	return s.Gateway.GetAccountFunds(ctx, sess)
}

// FundsResult 单个账户的资金查询结果
type FundsResult struct {
	DisplayName string
	Funds       types.AccountFunds
	Err         error
}

// FundsAll 并发查询所有已连接账户的资金，结果按显示名排序
func (s *BetfairService) FundsAll(ctx context.Context) ([]FundsResult, error) {
	names, err := s.Sessions.Connected(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]FundsResult, len(names))
	sg := syncgroup.NewSyncGroup(fanOutLimit)
	for i, name := range names {
		i, name := i, name
		sg.Add(func() {
			funds, err := s.Funds(ctx, name)
			results[i] = FundsResult{DisplayName: name, Funds: funds, Err: err}
		})
	}
	sg.RunAndWait()

	sort.Slice(results, func(i, j int) bool { return vault.Key(results[i].DisplayName) < vault.Key(results[j].DisplayName) })
	return results, nil
}

// Statistics 最近 months 个月（含当月）的月度盈亏
func (s *BetfairService) Statistics(ctx context.Context, displayName string, now time.Time, months int) ([]pnl.Row, error) {
	sess, err := s.Session(ctx, displayName)
	if err != nil {
		return nil, err
	}
	from := pnl.MonthlyStart(now, months)
	records, err := client.FetchAllClearedSession(ctx, s.Gateway, sess, from, now, 0)
	if err != nil {
		return nil, err
	}
	log.Debugf("statistics for %s: %d settled records since %s", displayName, len(records), from.Format("2006-01-02"))
	return pnl.Monthly(records, now, months), nil
}
