package settlement

// CalculateOdds returns display odds in percent. A side's odds are the other
// pool's share of the total, so the crowded side pays less. Empty markets are
// 50/50.
func CalculateOdds(yesPool, noPool int64) (yes, no int) {
	total := yesPool + noPool
	if total <= 0 {
		return 50, 50
	}
	// round half up
	yes = int(mulDiv(200, noPool, total)+1) / 2
	return yes, 100 - yes
}
