package hubutil

import (
	"math/big"

	"github.com/fatih/color"

	"github.com/spilman/hub/consts"
)

var (
	White = color.New(color.FgHiWhite).SprintFunc()
	Green = color.New(color.FgHiGreen).SprintFunc()
	Red   = color.New(color.FgHiRed).SprintFunc()

	User  = color.New(color.FgMagenta).SprintFunc()
	Ether = color.New(color.FgHiWhite).Add(color.Underline).SprintFunc()
	Wei   = color.New(color.Faint).SprintFunc()
)

// WeiColor prints a wei amount with the whole-token part highlighted,
// so balances stand out in engine logs.
func WeiColor(value *big.Int) string {
	whole := new(big.Int).Div(value, consts.BeiPerToken)
	if whole.Sign() == 0 {
		return Wei(value.String())
	}
	frac := new(big.Int).Mod(value, consts.BeiPerToken)
	return Ether(whole.String()) + "." + Wei(frac.String())
}

// BeiColor is WeiColor for token base units; green so the two are
// tellable apart at a glance.
func BeiColor(value *big.Int) string {
	whole := new(big.Int).Div(value, consts.BeiPerToken)
	if whole.Sign() == 0 {
		return Wei(value.String())
	}
	frac := new(big.Int).Mod(value, consts.BeiPerToken)
	return Green(whole.String()) + "." + Wei(frac.String())
}
