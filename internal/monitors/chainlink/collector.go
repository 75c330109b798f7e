package chainlink

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RoundRecord is one historical round's submission data, as recovered from
// a single SubmissionReceived (v3) or NewTransmission (v4) event.
type RoundRecord struct {
	RoundID          uint32
	RoundAnswer      *big.Int
	RoundTimestamp   *uint64
	AnsweredInRound  *uint32
	NodeSubmission   *big.Int
	NoOfObservations int
	NoOfTransmitters int
}

// ContractMetrics is everything collected for one node/proxy pair in one
// polling round.
type ContractMetrics struct {
	ContractVersion     int
	AggregatorAddress   common.Address
	Description         string
	LatestRound         uint32
	LatestAnswer        *big.Int
	LatestTimestamp     uint64
	AnsweredInRound     uint32
	WithdrawablePayment *big.Int
	OwedPayment         *big.Int
	LastRoundObserved   *uint32
	HistoricalRounds    []RoundRecord
}

// roundData mirrors a FluxAggregator/OCR latestRoundData/getRoundData
// return tuple.
type roundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

func callRoundData(ctx context.Context, bound *bind.BoundContract, method string, args ...any) (roundData, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := bound.Call(opts, &out, method, args...); err != nil {
		return roundData{}, err
	}
	return roundData{
		RoundID:         out[0].(*big.Int),
		Answer:          out[1].(*big.Int),
		StartedAt:       out[2].(*big.Int),
		UpdatedAt:       out[3].(*big.Int),
		AnsweredInRound: out[4].(*big.Int),
	}, nil
}

func callAddress(ctx context.Context, bound *bind.BoundContract, method string, args ...any) (common.Address, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := bound.Call(opts, &out, method, args...); err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func callString(ctx context.Context, bound *bind.BoundContract, method string) (string, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := bound.Call(opts, &out, method); err != nil {
		return "", err
	}
	return out[0].(string), nil
}

func callAddresses(ctx context.Context, bound *bind.BoundContract, method string) ([]common.Address, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := bound.Call(opts, &out, method); err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

func callBigInt(ctx context.Context, bound *bind.BoundContract, method string, args ...any) (*big.Int, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := bound.Call(opts, &out, method, args...); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func containsAddress(haystack []common.Address, needle common.Address) bool {
	for _, a := range haystack {
		if a == needle {
			return true
		}
	}
	return false
}

// nodeSubmission finds nodeIndex's position within observers (a
// NewTransmission event's array of transmitter indices, one per observation
// slot) and returns the matching entry from observations. Returns nil if
// nodeIndex does not appear in observers for this round.
func nodeSubmission(observers []byte, observations []*big.Int, nodeIndex int) *big.Int {
	for position, observerIndex := range observers {
		if int(observerIndex) == nodeIndex && position < len(observations) {
			return observations[position]
		}
	}
	return nil
}

// CollectV3 retrieves FluxAggregator metrics for one proxy contract a node
// participates on. On no-consensus-yet for a round (the aggregator's
// getRoundData reverts with ContractLogicError) the watermark is rolled
// back to the event's block minus one, so the next round re-checks it;
// this mirrors the original collector's behaviour exactly.
func CollectV3(
	ctx context.Context,
	client *ethclient.Client,
	aggregatorABI, proxyABI gethabi.ABI,
	proxy common.Address,
	nodeAddress common.Address,
	nodeID string,
	wm *Watermarks,
) (ContractMetrics, error) {
	proxyBound := bind.NewBoundContract(proxy, proxyABI, client, client, client)

	aggregatorAddr, err := callAddress(ctx, proxyBound, "aggregator")
	if err != nil {
		return ContractMetrics{}, fmt.Errorf("chainlink: v3 proxy %s aggregator(): %w", proxy, err)
	}
	description, err := callString(ctx, proxyBound, "description")
	if err != nil {
		return ContractMetrics{}, fmt.Errorf("chainlink: v3 proxy %s description(): %w", proxy, err)
	}

	aggBound := bind.NewBoundContract(aggregatorAddr, aggregatorABI, client, client, client)

	currentBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return ContractMetrics{}, fmt.Errorf("chainlink: fetching latest block: %w", err)
	}

	fromBlock, had := wm.LastBlockMonitored(nodeID, proxy.Hex())
	var fromBlockNum uint64
	if had {
		fromBlockNum = fromBlock + 1
	} else {
		fromBlockNum = currentBlock
	}
	if fromBlockNum > currentBlock {
		fromBlockNum = currentBlock
	}

	events, err := filterSubmissionReceived(ctx, client, aggregatorABI, aggregatorAddr, fromBlockNum, currentBlock, nodeAddress)
	if err != nil {
		return ContractMetrics{}, fmt.Errorf("chainlink: filtering SubmissionReceived on %s: %w", aggregatorAddr, err)
	}

	latest, err := callRoundData(ctx, aggBound, "latestRoundData")
	if err != nil {
		return ContractMetrics{}, fmt.Errorf("chainlink: v3 aggregator %s latestRoundData(): %w", aggregatorAddr, err)
	}
	withdrawable, err := callBigInt(ctx, aggBound, "withdrawablePayment", nodeAddress)
	if err != nil {
		return ContractMetrics{}, fmt.Errorf("chainlink: v3 aggregator %s withdrawablePayment(): %w", aggregatorAddr, err)
	}

	out := ContractMetrics{
		ContractVersion:     3,
		AggregatorAddress:   aggregatorAddr,
		Description:         description,
		LatestRound:         uint32(latest.RoundID.Uint64()),
		LatestAnswer:        latest.Answer,
		LatestTimestamp:     latest.UpdatedAt.Uint64(),
		AnsweredInRound:     uint32(latest.AnsweredInRound.Uint64()),
		WithdrawablePayment: withdrawable,
	}

	lastRoundObserved := wm.LastRoundObserved(nodeID, proxy.Hex())
	settledBlock := currentBlock

	for _, ev := range events {
		roundID := ev.Round
		lastRoundObserved = &roundID

		record := RoundRecord{RoundID: roundID, NodeSubmission: ev.Submission}

		rd, err := callRoundData(ctx, aggBound, "getRoundData", new(big.Int).SetUint64(uint64(roundID)))
		if err != nil {
			// consensus not yet reached for this round: roll the watermark
			// back to this event's block minus one and stop processing
			// further events this round.
			settledBlock = ev.BlockNumber - 1
			out.HistoricalRounds = append(out.HistoricalRounds, record)
			break
		}
		answer := rd.Answer
		ts := rd.UpdatedAt.Uint64()
		answeredIn := uint32(rd.AnsweredInRound.Uint64())
		record.RoundAnswer = answer
		record.RoundTimestamp = &ts
		record.AnsweredInRound = &answeredIn
		out.HistoricalRounds = append(out.HistoricalRounds, record)
	}

	wm.SetLastBlockMonitored(nodeID, proxy.Hex(), settledBlock)
	if lastRoundObserved != nil {
		wm.SetLastRoundObserved(nodeID, proxy.Hex(), *lastRoundObserved)
	}
	out.LastRoundObserved = lastRoundObserved

	return out, nil
}

// CollectV4 retrieves OCR-aggregator metrics for one proxy contract a node
// transmits on. Unlike v3, a round's data is always immediately available
// (OCR only emits NewTransmission after consensus), so the watermark never
// rolls back.
func CollectV4(
	ctx context.Context,
	client *ethclient.Client,
	aggregatorABI, proxyABI gethabi.ABI,
	proxy common.Address,
	nodeAddress common.Address,
	nodeID string,
	wm *Watermarks,
) (ContractMetrics, bool, error) {
	proxyBound := bind.NewBoundContract(proxy, proxyABI, client, client, client)

	aggregatorAddr, err := callAddress(ctx, proxyBound, "aggregator")
	if err != nil {
		return ContractMetrics{}, false, fmt.Errorf("chainlink: v4 proxy %s aggregator(): %w", proxy, err)
	}
	description, err := callString(ctx, proxyBound, "description")
	if err != nil {
		return ContractMetrics{}, false, fmt.Errorf("chainlink: v4 proxy %s description(): %w", proxy, err)
	}

	aggBound := bind.NewBoundContract(aggregatorAddr, aggregatorABI, client, client, client)

	transmitters, err := callAddresses(ctx, aggBound, "transmitters")
	if err != nil {
		return ContractMetrics{}, false, fmt.Errorf("chainlink: v4 aggregator %s transmitters(): %w", aggregatorAddr, err)
	}
	nodeIndex := -1
	for i, t := range transmitters {
		if t == nodeAddress {
			nodeIndex = i
			break
		}
	}
	if nodeIndex == -1 {
		// node is no longer a transmitter on this contract; not an error,
		// just nothing to collect this round.
		return ContractMetrics{}, false, nil
	}

	currentBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return ContractMetrics{}, false, fmt.Errorf("chainlink: fetching latest block: %w", err)
	}

	fromBlock, had := wm.LastBlockMonitored(nodeID, proxy.Hex())
	var fromBlockNum uint64
	if had {
		fromBlockNum = fromBlock + 1
	} else {
		fromBlockNum = currentBlock
	}
	if fromBlockNum > currentBlock {
		fromBlockNum = currentBlock
	}

	events, err := filterNewTransmission(ctx, client, aggregatorABI, aggregatorAddr, fromBlockNum, currentBlock)
	if err != nil {
		return ContractMetrics{}, false, fmt.Errorf("chainlink: filtering NewTransmission on %s: %w", aggregatorAddr, err)
	}

	latest, err := callRoundData(ctx, aggBound, "latestRoundData")
	if err != nil {
		return ContractMetrics{}, false, fmt.Errorf("chainlink: v4 aggregator %s latestRoundData(): %w", aggregatorAddr, err)
	}
	owed, err := callBigInt(ctx, aggBound, "owedPayment", nodeAddress)
	if err != nil {
		return ContractMetrics{}, false, fmt.Errorf("chainlink: v4 aggregator %s owedPayment(): %w", aggregatorAddr, err)
	}

	out := ContractMetrics{
		ContractVersion:   4,
		AggregatorAddress: aggregatorAddr,
		Description:       description,
		LatestRound:       uint32(latest.RoundID.Uint64()),
		LatestAnswer:      latest.Answer,
		LatestTimestamp:   latest.UpdatedAt.Uint64(),
		AnsweredInRound:   uint32(latest.AnsweredInRound.Uint64()),
		OwedPayment:       owed,
	}

	lastRoundObserved := wm.LastRoundObserved(nodeID, proxy.Hex())

	for _, ev := range events {
		rd, err := callRoundData(ctx, aggBound, "getRoundData", new(big.Int).SetUint64(uint64(ev.AggregatorRoundID)))
		if err != nil {
			continue
		}
		ts := rd.UpdatedAt.Uint64()
		answeredIn := uint32(rd.AnsweredInRound.Uint64())

		record := RoundRecord{
			RoundID:          ev.AggregatorRoundID,
			RoundAnswer:      rd.Answer,
			RoundTimestamp:   &ts,
			AnsweredInRound:  &answeredIn,
			NoOfObservations: len(ev.Observations),
			NoOfTransmitters: len(transmitters),
		}

		record.NodeSubmission = nodeSubmission(ev.Observers, ev.Observations, nodeIndex)

		roundID := ev.AggregatorRoundID
		lastRoundObserved = &roundID

		out.HistoricalRounds = append(out.HistoricalRounds, record)
	}

	wm.SetLastBlockMonitored(nodeID, proxy.Hex(), currentBlock)
	if lastRoundObserved != nil {
		wm.SetLastRoundObserved(nodeID, proxy.Hex(), *lastRoundObserved)
	}
	out.LastRoundObserved = lastRoundObserved

	return out, true, nil
}

type submissionReceivedEvent struct {
	Submission  *big.Int
	Round       uint32
	Oracle      common.Address
	BlockNumber uint64
}

func filterSubmissionReceived(ctx context.Context, client *ethclient.Client, aggregatorABI gethabi.ABI, contract common.Address, from, to uint64, oracle common.Address) ([]submissionReceivedEvent, error) {
	eventID := aggregatorABI.Events["SubmissionReceived"].ID
	topics := [][]common.Hash{{eventID}, {}, {common.BytesToHash(oracle.Bytes())}}

	query := ethereumFilterQuery(contract, from, to, topics)
	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]submissionReceivedEvent, 0, len(logs))
	for _, l := range logs {
		var parsed struct {
			Submission *big.Int
		}
		if err := aggregatorABI.UnpackIntoInterface(&parsed, "SubmissionReceived", l.Data); err != nil {
			continue
		}
		out = append(out, submissionReceivedEvent{
			Submission:  parsed.Submission,
			Round:       uint32(l.Topics[1].Big().Uint64()),
			Oracle:      common.BytesToAddress(l.Topics[2].Bytes()),
			BlockNumber: l.BlockNumber,
		})
	}
	return out, nil
}

type newTransmissionEvent struct {
	AggregatorRoundID uint32
	Observations      []*big.Int
	Observers         []byte
	BlockNumber       uint64
}

func filterNewTransmission(ctx context.Context, client *ethclient.Client, aggregatorABI gethabi.ABI, contract common.Address, from, to uint64) ([]newTransmissionEvent, error) {
	eventID := aggregatorABI.Events["NewTransmission"].ID
	topics := [][]common.Hash{{eventID}}

	query := ethereumFilterQuery(contract, from, to, topics)
	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]newTransmissionEvent, 0, len(logs))
	for _, l := range logs {
		var parsed struct {
			Answer            *big.Int
			Transmitter       common.Address
			Observations      []*big.Int
			Observers         []byte
			RawReportContext  [32]byte
		}
		if err := aggregatorABI.UnpackIntoInterface(&parsed, "NewTransmission", l.Data); err != nil {
			continue
		}
		var roundID uint32
		if len(l.Topics) > 1 {
			roundID = uint32(l.Topics[1].Big().Uint64())
		}
		out = append(out, newTransmissionEvent{
			AggregatorRoundID: roundID,
			Observations:      parsed.Observations,
			Observers:         parsed.Observers,
			BlockNumber:       l.BlockNumber,
		})
	}
	return out, nil
}

func ethereumFilterQuery(contract common.Address, from, to uint64, topics [][]common.Hash) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract},
		Topics:    topics,
	}
}
