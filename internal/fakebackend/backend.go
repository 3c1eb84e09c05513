// Package fakebackend is an in-memory stand-in for the Thermos REST backend,
// served with gin, for tests of the client and the commands built on it.
package fakebackend

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// Request records one call received by the backend.
type Request struct {
	Method    string
	Path      string
	Query     string
	Auth      string
	RequestID string
}

type failure struct {
	status  int
	message string
}

// Backend holds tables in memory and serves them over the REST contract.
type Backend struct {
	mu       sync.Mutex
	prefix   string
	tables   map[string][]schema.Row
	columns  map[string][]schema.Column
	nextID   map[string]int64
	failures map[string]failure
	requests []Request
	engine   *gin.Engine

	// WrapLists answers list requests with {"data": [...], ...} instead of a bare array.
	WrapLists bool

	// PageSize splits wrapped list responses into pages selected by the
	// "page" query parameter.
	PageSize int
}

// New creates a Backend serving tables under prefix.
func New(prefix string) *Backend {
	gin.SetMode(gin.TestMode)

	b := &Backend{
		prefix:   prefix,
		tables:   make(map[string][]schema.Row),
		columns:  make(map[string][]schema.Column),
		nextID:   make(map[string]int64),
		failures: make(map[string]failure),
	}

	r := gin.New()
	r.Use(b.record)
	g := r.Group(prefix)
	g.GET("/:table", b.list)
	g.GET("/:table/columns", b.listColumns)
	g.POST("/:table", b.insert)
	g.PUT("/:table/:id", b.update)
	g.DELETE("/:table/:id", b.inactivate)
	b.engine = r

	return b
}

// Handler returns the http.Handler serving the backend.
func (b *Backend) Handler() http.Handler {
	return b.engine
}

// Seed appends rows to a table, assigning ids to rows without one.
func (b *Backend) Seed(table string, rows ...schema.Row) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pk := table + schema.PrimaryKeySuffix
	for _, row := range rows {
		row = row.Clone()
		if id, ok := row.Int64(pk); ok {
			if id > b.nextID[table] {
				b.nextID[table] = id
			}
		} else {
			b.nextID[table]++
			row[pk] = b.nextID[table]
		}
		b.tables[table] = append(b.tables[table], row)
	}
}

// SetColumns overrides the column metadata returned for a table.
func (b *Backend) SetColumns(table string, columns []schema.Column) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.columns[table] = columns
}

// Fail makes every request touching table answer status with message.
func (b *Backend) Fail(table string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[table] = failure{status: status, message: message}
}

// Rows returns a copy of a table's rows.
func (b *Backend) Rows(table string) []schema.Row {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]schema.Row, len(b.tables[table]))
	for i, row := range b.tables[table] {
		out[i] = row.Clone()
	}
	return out
}

// Requests returns the calls received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.requests)
}

func (b *Backend) record(c *gin.Context) {
	b.mu.Lock()
	b.requests = append(b.requests, Request{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Query:     c.Request.URL.RawQuery,
		Auth:      c.GetHeader("Authorization"),
		RequestID: c.GetHeader("X-Request-ID"),
	})
	f, failing := b.failures[c.Param("table")]
	b.mu.Unlock()

	if failing {
		c.AbortWithStatusJSON(f.status, gin.H{"error": f.message})
		return
	}
	c.Next()
}

func (b *Backend) list(c *gin.Context) {
	table := c.Param("table")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = n
	}

	filters := map[string]string{}
	for key, values := range c.Request.URL.Query() {
		if key != "limit" && key != "page" && len(values) > 0 {
			filters[key] = values[0]
		}
	}

	b.mu.Lock()
	rows := make([]schema.Row, 0, len(b.tables[table]))
	for _, row := range b.tables[table] {
		if matches(row, filters) {
			rows = append(rows, row.Clone())
		}
	}
	wrap := b.WrapLists
	pageSize := b.PageSize
	b.mu.Unlock()

	total := len(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	if wrap {
		page, pages := 1, 1
		if pageSize > 0 {
			if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
				page = n
			}
			pages = max(1, (len(rows)+pageSize-1)/pageSize)
			start := min((page-1)*pageSize, len(rows))
			rows = rows[start:min(start+pageSize, len(rows))]
		}
		c.JSON(http.StatusOK, gin.H{"data": rows, "total": total, "page": page, "totalPages": pages})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func matches(row schema.Row, filters map[string]string) bool {
	for column, want := range filters {
		if schema.FormatValue(row[column]) != want {
			return false
		}
	}
	return true
}

func (b *Backend) listColumns(c *gin.Context) {
	table := c.Param("table")

	b.mu.Lock()
	defer b.mu.Unlock()

	if cols, ok := b.columns[table]; ok {
		c.JSON(http.StatusOK, cols)
		return
	}

	// Derive metadata from the first row
	var cols []schema.Column
	if rows := b.tables[table]; len(rows) > 0 {
		names := make([]string, 0, len(rows[0]))
		for name := range rows[0] {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			cols = append(cols, schema.Column{
				ColumnName:   name,
				DataType:     dataTypeOf(rows[0][name]),
				IsNullable:   true,
				IsPrimaryKey: name == table+schema.PrimaryKeySuffix,
			})
		}
	}
	c.JSON(http.StatusOK, cols)
}

func dataTypeOf(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int, int32, int64:
		return "integer"
	case float32, float64:
		return "double precision"
	}
	return "text"
}

func (b *Backend) insert(c *gin.Context) {
	table := c.Param("table")

	var row schema.Row
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid body: %v", err)})
		return
	}

	b.mu.Lock()
	b.nextID[table]++
	id := b.nextID[table]
	row[table+schema.PrimaryKeySuffix] = id
	b.tables[table] = append(b.tables[table], row)
	b.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (b *Backend) update(c *gin.Context) {
	table := c.Param("table")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var patch schema.Row
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid body: %v", err)})
		return
	}

	if !b.apply(table, id, patch) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s %d not found", table, id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (b *Backend) inactivate(c *gin.Context) {
	table := c.Param("table")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if !b.apply(table, id, schema.Row{schema.ColumnStatus: schema.StatusInactive}) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s %d not found", table, id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "inactivated"})
}

func (b *Backend) apply(table string, id int64, patch schema.Row) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pk := table + schema.PrimaryKeySuffix
	for _, row := range b.tables[table] {
		if rowID, ok := row.Int64(pk); ok && rowID == id {
			for k, v := range patch {
				if k == pk {
					continue
				}
				row[k] = v
			}
			return true
		}
	}
	return false
}
