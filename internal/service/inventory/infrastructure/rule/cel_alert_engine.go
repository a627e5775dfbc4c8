// internal/service/inventory/infrastructure/rule/cel_alert_engine.go
package rule

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"stockhold/internal/service/inventory/domain"
)

// CELAlertEngine 是 port.AlertRuleEngine 的 cel-go 实现。
// 运营用一条 CEL 表达式描述什么情况算低库存，例如:
//
//	available <= threshold && reserved > 0
//	available == 0 || (threshold > 0 && available <= threshold)
//
// 表达式在创建时编译一次，之后每次求值只是执行已编译的程序。
type CELAlertEngine struct {
	program cel.Program
}

// NewCELAlertEngine 编译规则表达式并返回引擎实例。
// 表达式语法错误在这里就会暴露，而不是等到第一次求值。
func NewCELAlertEngine(expression string) (*CELAlertEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("product_id", cel.StringType),
		cel.Variable("total", cel.IntType),
		cel.Variable("reserved", cel.IntType),
		cel.Variable("available", cel.IntType),
		cel.Variable("threshold", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile alert rule %q: %w", expression, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("alert rule %q must evaluate to bool, got %s", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL program: %w", err)
	}
	return &CELAlertEngine{program: program}, nil
}

// ShouldAlert 用库存快照求值规则
func (e *CELAlertEngine) ShouldAlert(level *domain.StockLevel, threshold int64) (bool, error) {
	out, _, err := e.program.Eval(map[string]interface{}{
		"product_id": level.ProductID,
		"total":      level.TotalQuantity,
		"reserved":   level.ReservedQuantity,
		"available":  level.AvailableQuantity,
		"threshold":  threshold,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate alert rule: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type from alert rule: %T", out.Value())
	}
	return result, nil
}
