package rule

import (
	"context"
	"reflect"
	"sync/atomic"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/service/ware/domain"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// DefaultReleaseExpression 订单不存在或已取消时释放预占
const DefaultReleaseExpression = `!found || status == "CANCELLED"`

// CELReleasePolicy 是 port.ReleasePolicy 的 CEL 实现。
// 表达式可用的变量：found (bool)、status (string)、orderSn (string)，结果必须是 bool。
type CELReleasePolicy struct {
	expression string
	program    cel.Program
}

// NewCELReleasePolicy 编译表达式，expr 为空时使用默认规则
func NewCELReleasePolicy(expr string) (*CELReleasePolicy, error) {
	if expr == "" {
		expr = DefaultReleaseExpression
	}
	env, err := cel.NewEnv(
		cel.Variable("found", cel.BoolType),
		cel.Variable("status", cel.StringType),
		cel.Variable("orderSn", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile release policy %q", expr)
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, errors.Errorf("release policy %q must evaluate to bool, got %v", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build cel program")
	}
	return &CELReleasePolicy{expression: expr, program: prg}, nil
}

// ShouldRelease 对订单快照求值
func (p *CELReleasePolicy) ShouldRelease(snapshot domain.OrderSnapshot) (bool, error) {
	out, _, err := p.program.Eval(map[string]interface{}{
		"found":   snapshot.Found,
		"status":  string(snapshot.Status),
		"orderSn": snapshot.OrderSn,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate release policy %q", p.expression)
	}
	release, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("release policy returned %T", out.Value())
	}
	return release, nil
}

// Expression 返回生效的表达式
func (p *CELReleasePolicy) Expression() string {
	return p.expression
}

// ReloadingReleasePolicy 在表达式来源变化时重新编译，用于配置中心热更新。
// 新表达式编译失败时继续使用上一次生效的规则。
type ReloadingReleasePolicy struct {
	source   func() string
	current  atomic.Pointer[CELReleasePolicy]
	rejected atomic.Pointer[string]
}

func NewReloadingReleasePolicy(source func() string) (*ReloadingReleasePolicy, error) {
	p, err := NewCELReleasePolicy(source())
	if err != nil {
		return nil, err
	}
	r := &ReloadingReleasePolicy{source: source}
	r.current.Store(p)
	return r, nil
}

func (r *ReloadingReleasePolicy) ShouldRelease(snapshot domain.OrderSnapshot) (bool, error) {
	return r.policy().ShouldRelease(snapshot)
}

func (r *ReloadingReleasePolicy) policy() *CELReleasePolicy {
	cur := r.current.Load()
	expr := r.source()
	if expr == "" {
		expr = DefaultReleaseExpression
	}
	if expr == cur.Expression() {
		return cur
	}
	if bad := r.rejected.Load(); bad != nil && *bad == expr {
		return cur
	}
	next, err := NewCELReleasePolicy(expr)
	if err != nil {
		r.rejected.Store(&expr)
		logger.Ctx(context.Background()).Error().Err(err).Str("active", cur.Expression()).Msg("Invalid release policy, keeping the active one")
		return cur
	}
	r.current.CompareAndSwap(cur, next)
	logger.Ctx(context.Background()).Info().Str("expression", expr).Msg("🔄 Release policy reloaded")
	return next
}
