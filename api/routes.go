package api

import (
	"net/http"

	"github.com/axiomesh/tally/core/counter"
	"github.com/axiomesh/tally/core/tracker"
	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

type accountResponse struct {
	Address    types.Address `json:"address"`
	Owner      types.Address `json:"owner"`
	Lamports   uint64        `json:"lamports"`
	Data       hexutil.Bytes `json:"data"`
	Executable bool          `json:"executable"`
}

type counterResponse struct {
	Address types.Address `json:"address"`
	*counter.Record
}

type trackerResponse struct {
	Address types.Address `json:"address"`
	*tracker.Record
}

type deriveResponse struct {
	Delegate     types.Address `json:"delegate"`
	DelegateBump uint8         `json:"delegate_bump"`
	Record       types.Address `json:"record"`
	RecordBump   uint8         `json:"record_bump"`
}

func (s *Server) registerRoutes(r gin.IRouter) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	r.GET("/slot", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"slot": s.rt.Slot(),
		})
	})
	r.GET("/accounts/:address", s.getAccount)
	r.GET("/counters/:address", s.getCounter)
	r.GET("/trackers/:address", s.getTracker)
	r.GET("/derive", s.derive)
	r.GET("/receipts/:hash", s.getReceipt)
}

func abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

// loadAccount resolves the :address param. It writes the error response and
// returns false when the address is invalid or the account is missing.
func (s *Server) loadAccount(c *gin.Context) (types.Address, *ledger.Account, bool) {
	addr, err := types.HexToAddress(c.Param("address"))
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return addr, nil, false
	}
	acc, err := s.rt.Account(addr)
	if err != nil {
		abort(c, http.StatusInternalServerError, err.Error())
		return addr, nil, false
	}
	if acc == nil {
		abort(c, http.StatusNotFound, "account not found")
		return addr, nil, false
	}
	return addr, acc, true
}

func (s *Server) getAccount(c *gin.Context) {
	addr, acc, ok := s.loadAccount(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, accountResponse{
		Address:    addr,
		Owner:      acc.Owner,
		Lamports:   acc.Lamports,
		Data:       acc.Data,
		Executable: acc.Executable,
	})
}

func (s *Server) getCounter(c *gin.Context) {
	addr, acc, ok := s.loadAccount(c)
	if !ok {
		return
	}
	if acc.Owner != s.cfg.CounterID {
		abort(c, http.StatusNotFound, "not a counter record")
		return
	}
	record, err := counter.UnmarshalRecord(acc.Data)
	if err != nil {
		abort(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, counterResponse{Address: addr, Record: record})
}

func (s *Server) getTracker(c *gin.Context) {
	addr, acc, ok := s.loadAccount(c)
	if !ok {
		return
	}
	if acc.Owner != s.cfg.TrackerID {
		abort(c, http.StatusNotFound, "not a tracker record")
		return
	}
	record, err := tracker.UnmarshalRecord(acc.Data)
	if err != nil {
		abort(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, trackerResponse{Address: addr, Record: record})
}

func (s *Server) derive(c *gin.Context) {
	user, err := types.HexToAddress(c.Query("user"))
	if err != nil {
		abort(c, http.StatusBadRequest, "user: "+err.Error())
		return
	}
	counterAddr, err := types.HexToAddress(c.Query("counter"))
	if err != nil {
		abort(c, http.StatusBadRequest, "counter: "+err.Error())
		return
	}

	delegate, delegateBump, err := tracker.FindDelegate(s.cfg.TrackerID, counterAddr)
	if err != nil {
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	record, recordBump, err := tracker.FindRecord(s.cfg.TrackerID, user, counterAddr)
	if err != nil {
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, deriveResponse{
		Delegate:     delegate,
		DelegateBump: delegateBump,
		Record:       record,
		RecordBump:   recordBump,
	})
}

func (s *Server) getReceipt(c *gin.Context) {
	raw, err := hexutil.Decode(c.Param("hash"))
	if err != nil || len(raw) != common.HashLength {
		abort(c, http.StatusBadRequest, "invalid transaction hash")
		return
	}
	receipt, err := s.rt.Receipt(common.BytesToHash(raw))
	if err != nil {
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	if receipt == nil {
		abort(c, http.StatusNotFound, "receipt not found")
		return
	}
	c.JSON(http.StatusOK, receipt)
}
