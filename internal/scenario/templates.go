package scenario

import (
	"fmt"

	"github.com/pchave/agentmarket/internal/wire"
)

// template is a news flash with the symbol still unbound. Headlines
// must not contain colons; the wire format is colon-delimited.
type template struct {
	sentiment wire.Sentiment
	headline  string
	impact    wire.Impact
}

func (t template) flash(symbol string) wire.NewsFlash {
	return wire.NewsFlash{
		Sentiment: t.sentiment,
		Headline:  fmt.Sprintf(t.headline, symbol),
		Impact:    t.impact,
	}
}

// newsFrequency is the per-tick probability of drawing a flash.
var newsFrequency = map[Phase]float64{
	PhaseCalm:          0.15,
	PhaseEmergingTrend: 0.30,
	PhaseBubble:        0.50,
	PhaseCrash:         0.70,
	PhaseStabilization: 0.25,
}

var phaseNews = map[Phase][]template{
	PhaseCalm: {
		{wire.SentimentNeutral, "%s trades sideways in quiet session", wire.ImpactLow},
		{wire.SentimentNeutral, "Volumes light as %s holders sit on hands", wire.ImpactLow},
		{wire.SentimentPositive, "%s earnings in line with estimates", wire.ImpactLow},
		{wire.SentimentNegative, "Minor supplier dispute brushes %s", wire.ImpactLow},
	},
	PhaseEmergingTrend: {
		{wire.SentimentPositive, "Analysts note sustained buying interest in %s", wire.ImpactMedium},
		{wire.SentimentPositive, "%s upgraded to outperform at two brokerages", wire.ImpactMedium},
		{wire.SentimentPositive, "Fund flows tilt toward %s for a third week", wire.ImpactLow},
		{wire.SentimentNeutral, "Traders debate whether %s rally has legs", wire.ImpactLow},
	},
	PhaseBubble: {
		{wire.SentimentPositive, "%s mania grips retail boards as price targets double", wire.ImpactHigh},
		{wire.SentimentPositive, "Record inflows chase %s to fresh highs", wire.ImpactHigh},
		{wire.SentimentPositive, "Everyone you know is buying %s", wire.ImpactMedium},
		{wire.SentimentNegative, "Short sellers warn %s valuation has left orbit", wire.ImpactMedium},
	},
	PhaseCrash: {
		{wire.SentimentNegative, "%s plunges as leveraged longs unwind", wire.ImpactHigh},
		{wire.SentimentNegative, "Margin calls cascade through %s holders", wire.ImpactHigh},
		{wire.SentimentNegative, "Panic selling hits %s for a second straight session", wire.ImpactHigh},
		{wire.SentimentNeutral, "Exchange confirms orderly function despite %s rout", wire.ImpactMedium},
	},
	PhaseStabilization: {
		{wire.SentimentNeutral, "%s finds a floor as volatility ebbs", wire.ImpactMedium},
		{wire.SentimentPositive, "Value buyers step into %s after washout", wire.ImpactLow},
		{wire.SentimentNeutral, "Dust settles on %s as session winds down", wire.ImpactLow},
	},
}

// phaseAnnouncements are broadcast exactly once, on the transition into
// each phase. They bypass the random gate.
var phaseAnnouncements = map[Phase]template{
	PhaseEmergingTrend: {wire.SentimentPositive, "Momentum builds under %s as a trend takes shape", wire.ImpactMedium},
	PhaseBubble:        {wire.SentimentPositive, "Euphoria takes hold and %s goes vertical", wire.ImpactHigh},
	PhaseCrash:         {wire.SentimentNegative, "The bottom falls out of %s", wire.ImpactHigh},
	PhaseStabilization: {wire.SentimentNeutral, "%s steadies as the storm passes", wire.ImpactMedium},
}
