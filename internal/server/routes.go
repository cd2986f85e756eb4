package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/acctos/internal/api"
	"github.com/danmuck/acctos/internal/deployment"
	"github.com/danmuck/acctos/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		if s.d == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
			return
		}
		m := s.d.Manifest()
		c.JSON(http.StatusOK, gin.H{
			"ready":    true,
			"chain_id": s.d.Chain().Config().ChainID,
			"height":   s.d.Chain().Height(),
			"version":  m.Version,
			"registry": m.Registry,
			"ans":      m.ANS,
		})
	})

	r.GET("/modules/:namespace/:name", s.getModule)
	r.GET("/ans/assets/:name", s.getAsset)
	r.GET("/ans/pools", s.listPools)
	r.GET("/ans/dexes", s.listDexes)
	r.GET("/accounts/:id", s.getAccount)
	r.GET("/accounts/:id/modules", s.listAccountModules)
}

// getModule resolves ?version= (default latest) and lists every published version.
func (s *Server) getModule(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	id := c.Param("namespace") + ":" + c.Param("name")
	record, err := s.d.Registry.Resolve(c.Request.Context(), id, c.Query("version"))
	if err != nil {
		fail(c, err)
		return
	}
	versions, err := s.d.Registry.Versions(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"module":   record,
		"kind":     record.Reference.Kind(),
		"versions": versions,
	})
}

func (s *Server) getAsset(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	name := c.Param("name")
	info, err := s.d.ANS.Asset(c.Request.Context(), name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": api.NormalizeName(name), "asset": info})
}

func (s *Server) listPools(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	page, err := pageQuery(c)
	if err != nil {
		fail(c, err)
		return
	}
	pools, err := s.d.ANS.Pools(c.Request.Context(), page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.PoolsResponse{Pools: pools})
}

func (s *Server) listDexes(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	dexes, err := s.d.ANS.Dexes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DexesResponse{Dexes: dexes})
}

func (s *Server) getAccount(c *gin.Context) {
	acct, ok := s.account(c)
	if !ok {
		return
	}
	info, err := acct.Controller().Info(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	balances, err := acct.Balances(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":  acct.Bundle,
		"info":     info,
		"balances": balances,
	})
}

func (s *Server) listAccountModules(c *gin.Context) {
	acct, ok := s.account(c)
	if !ok {
		return
	}
	modules, err := acct.Modules(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ModulesPage{Modules: modules})
}

func (s *Server) account(c *gin.Context) (*deployment.Account, bool) {
	if !s.ready(c) {
		return nil, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, fmt.Errorf("%w: account id %q", ledger.ErrInvalidMsg, c.Param("id")))
		return nil, false
	}
	acct, err := s.d.Account(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return acct, true
}

func (s *Server) ready(c *gin.Context) bool {
	if s.d == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not deployed"})
		return false
	}
	return true
}

func pageQuery(c *gin.Context) (api.PageQuery, error) {
	page := api.PageQuery{StartAfter: c.Query("start_after")}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return api.PageQuery{}, fmt.Errorf("%w: limit %q", ledger.ErrInvalidMsg, raw)
		}
		page.Limit = n
	}
	return page, nil
}
