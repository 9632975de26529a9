package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/executor"
	"github.com/tolelom/irohad/queue"
	"github.com/tolelom/irohad/wsv"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Handler holds all dependencies needed to serve RPC methods: queries read
// from the world state view, sendTx admits into the transaction queue.
type Handler struct {
	chain   *core.Blockchain
	wsv     *wsv.WSV
	queue   *queue.Queue
	policy  *executor.Policy
	chainId string // expected chain_id; rejects cross-chain replay transactions
}

// NewHandler creates an RPC Handler. policy validates the requestor of
// every account-scoped query (spec §8 scenario S2: a query from an
// unregistered account must be rejected with Validation).
func NewHandler(chain *core.Blockchain, w *wsv.WSV, q *queue.Queue, policy *executor.Policy, chainId string) *Handler {
	return &Handler{chain: chain, wsv: w, queue: q, policy: policy, chainId: chainId}
}

// requireRequestor parses the requestor id carried by every account-scoped
// query and runs it through the installed executor's validate_query check
// before the query is served.
func (h *Handler) requireRequestor(requestor, method string) error {
	requestorId, err := parseAccountId(requestor)
	if err != nil {
		return fmt.Errorf("requestor: %w", err)
	}
	return h.policy.ValidateQuery(h.wsv, requestorId, method)
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.chain.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getAccount":
		return h.getAccount(req)

	case "getDomain":
		return h.getDomain(req)

	case "getAsset":
		return h.getAsset(req)

	case "getAssetDefinition":
		return h.getAssetDefinition(req)

	case "getRole":
		return h.getRole(req)

	case "getTrigger":
		return h.getTrigger(req)

	case "getPeers":
		return okResponse(req.ID, h.wsv.PeerSet())

	case "sendTransaction":
		return h.sendTransaction(req)

	case "getQueueSize":
		return okResponse(req.ID, h.queue.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string  `json:"hash"`
		Height *uint64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.chain.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.chain.GetBlockByHeight(*params.Height)
	} else {
		block = h.chain.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

// parseAccountId decodes an RPC account parameter of the form
// "<key-hex>@<domain>".
func parseAccountId(s string) (core.AccountId, error) {
	keyHex, domainName, ok := strings.Cut(s, "@")
	if !ok {
		return core.AccountId{}, fmt.Errorf("malformed account id %q: missing '@'", s)
	}
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return core.AccountId{}, fmt.Errorf("account key hex: %w", err)
	}
	domain, err := core.NewDomainId(domainName)
	if err != nil {
		return core.AccountId{}, err
	}
	return core.NewAccountId(domain, crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: keyBytes}), nil
}

func (h *Handler) getAccount(req Request) Response {
	var params struct {
		Id        string `json:"id"`
		Requestor string `json:"requestor"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.requireRequestor(params.Requestor, "getAccount"); err != nil {
		return errResponse(req.ID, CodeUnauthorized, err.Error())
	}
	accountId, err := parseAccountId(params.Id)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	account, ok := h.wsv.GetAccount(accountId)
	if !ok {
		return errResponse(req.ID, CodeInternalError, "account not found")
	}
	return okResponse(req.ID, account)
}

func (h *Handler) getDomain(req Request) Response {
	var params struct {
		Name      string `json:"name"`
		Requestor string `json:"requestor"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.requireRequestor(params.Requestor, "getDomain"); err != nil {
		return errResponse(req.ID, CodeUnauthorized, err.Error())
	}
	domainId, err := core.NewDomainId(params.Name)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	domain, ok := h.wsv.GetDomain(domainId)
	if !ok {
		return errResponse(req.ID, CodeInternalError, "domain not found")
	}
	return okResponse(req.ID, domain)
}

func (h *Handler) getAssetDefinition(req Request) Response {
	var params struct {
		Name      string `json:"name"`
		Domain    string `json:"domain"`
		Requestor string `json:"requestor"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.requireRequestor(params.Requestor, "getAssetDefinition"); err != nil {
		return errResponse(req.ID, CodeUnauthorized, err.Error())
	}
	domainId, err := core.NewDomainId(params.Domain)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	defId, err := core.NewAssetDefinitionId(params.Name, domainId)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	def, ok := h.wsv.GetAssetDefinition(defId)
	if !ok {
		return errResponse(req.ID, CodeInternalError, "asset definition not found")
	}
	return okResponse(req.ID, def)
}

func (h *Handler) getAsset(req Request) Response {
	var params struct {
		DefinitionName   string `json:"definition_name"`
		DefinitionDomain string `json:"definition_domain"`
		Account          string `json:"account"`
		Requestor        string `json:"requestor"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.requireRequestor(params.Requestor, "getAsset"); err != nil {
		return errResponse(req.ID, CodeUnauthorized, err.Error())
	}
	domainId, err := core.NewDomainId(params.DefinitionDomain)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	defId, err := core.NewAssetDefinitionId(params.DefinitionName, domainId)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	accountId, err := parseAccountId(params.Account)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	asset, ok := h.wsv.GetAsset(core.NewAssetId(defId, accountId))
	if !ok {
		return errResponse(req.ID, CodeInternalError, "asset not found")
	}
	return okResponse(req.ID, asset)
}

func (h *Handler) getRole(req Request) Response {
	var params struct {
		Name      string `json:"name"`
		Requestor string `json:"requestor"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.requireRequestor(params.Requestor, "getRole"); err != nil {
		return errResponse(req.ID, CodeUnauthorized, err.Error())
	}
	roleId, err := core.NewRoleId(params.Name)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	role, ok := h.wsv.GetRole(roleId)
	if !ok {
		return errResponse(req.ID, CodeInternalError, "role not found")
	}
	return okResponse(req.ID, role)
}

func (h *Handler) getTrigger(req Request) Response {
	var params struct {
		Name      string `json:"name"`
		Requestor string `json:"requestor"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.requireRequestor(params.Requestor, "getTrigger"); err != nil {
		return errResponse(req.ID, CodeUnauthorized, err.Error())
	}
	triggerId, err := core.NewTriggerId(params.Name)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	trigger, ok := h.wsv.GetTrigger(triggerId)
	if !ok {
		return errResponse(req.ID, CodeInternalError, "trigger not found")
	}
	return okResponse(req.ID, trigger)
}

func (h *Handler) sendTransaction(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if tx.ChainId != h.chainId {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainId, h.chainId))
	}
	hash, err := tx.Hash()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	nowMs := nowMillis()
	if err := h.queue.Add(&tx, nowMs); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_hash": hash})
}
