package model

import "fmt"

// MarketType is one of the instrument categories B3 reports movements for.
type MarketType string

const (
	MarketTypeBox               MarketType = "box"
	MarketTypeForward           MarketType = "forward"
	MarketTypeFuture            MarketType = "future"
	MarketTypeOptions           MarketType = "options"
	MarketTypeSwap              MarketType = "swap"
	MarketTypeFixedIncome       MarketType = "fixed-income"
	MarketTypeCOE               MarketType = "coe"
	MarketTypeEquities          MarketType = "equities"
	MarketTypeETF               MarketType = "etf"
	MarketTypeInternationalETF  MarketType = "international-etf"
	MarketTypeInvestmentFunds   MarketType = "investment-funds"
	MarketTypeSecuritiesLending MarketType = "securities-lending"
	MarketTypeTreasuryBonds     MarketType = "treasury-bonds"
)

// AllMarketTypes lists every market type supported by the B3 movements API.
var AllMarketTypes = []MarketType{
	MarketTypeBox,
	MarketTypeForward,
	MarketTypeFuture,
	MarketTypeOptions,
	MarketTypeSwap,
	MarketTypeFixedIncome,
	MarketTypeCOE,
	MarketTypeEquities,
	MarketTypeETF,
	MarketTypeInternationalETF,
	MarketTypeInvestmentFunds,
	MarketTypeSecuritiesLending,
	MarketTypeTreasuryBonds,
}

// EnvelopeKeys names the two nesting keys under which the B3 response
// envelope buries the movement list for a market type.
type EnvelopeKeys struct {
	Periods   string
	Movements string
	Quantity  string
}

// movementEnvelopes maps each market type to its envelope keys. The remote
// derives these from the market type name, camel-casing hyphenated types.
var movementEnvelopes = map[MarketType]EnvelopeKeys{
	MarketTypeBox:               {"boxPeriods", "boxMovements", "boxQuantity"},
	MarketTypeForward:           {"forwardPeriods", "forwardMovements", "forwardQuantity"},
	MarketTypeFuture:            {"futurePeriods", "futureMovements", "futureQuantity"},
	MarketTypeOptions:           {"optionsPeriods", "optionsMovements", "optionsQuantity"},
	MarketTypeSwap:              {"swapPeriods", "swapMovements", "swapQuantity"},
	MarketTypeFixedIncome:       {"fixedIncomePeriods", "fixedIncomeMovements", "fixedIncomeQuantity"},
	MarketTypeCOE:               {"coePeriods", "coeMovements", "coeQuantity"},
	MarketTypeEquities:          {"equitiesPeriods", "equitiesMovements", "equitiesQuantity"},
	MarketTypeETF:               {"etfPeriods", "etfMovements", "etfQuantity"},
	MarketTypeInternationalETF:  {"internationalEtfPeriods", "internationalEtfMovements", "internationalEtfQuantity"},
	MarketTypeInvestmentFunds:   {"investmentFundsPeriods", "investmentFundsMovements", "investmentFundsQuantity"},
	MarketTypeSecuritiesLending: {"securitiesLendingPeriods", "securitiesLendingMovements", "securitiesLendingQuantity"},
	MarketTypeTreasuryBonds:     {"treasuryBondsPeriods", "treasuryBondsMovements", "treasuryBondsQuantity"},
}

func init() {
	// The envelope table must cover the market-type set exactly.
	if len(movementEnvelopes) != len(AllMarketTypes) {
		panic(fmt.Sprintf("movement envelope table has %d entries, want %d",
			len(movementEnvelopes), len(AllMarketTypes)))
	}
	for _, mt := range AllMarketTypes {
		if _, ok := movementEnvelopes[mt]; !ok {
			panic(fmt.Sprintf("movement envelope table is missing market type %q", mt))
		}
	}
}

// Valid reports whether mt is a known market type.
func (mt MarketType) Valid() bool {
	_, ok := movementEnvelopes[mt]
	return ok
}

// Envelope returns the envelope keys for mt.
func (mt MarketType) Envelope() (EnvelopeKeys, bool) {
	keys, ok := movementEnvelopes[mt]
	return keys, ok
}
