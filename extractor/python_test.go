package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/healthwatch/facts"
)

const pySource = `import logging
from fastapi import APIRouter

import boto3

logger = logging.getLogger(__name__)
router = APIRouter()


@router.get("/orders")
async def list_orders():
    return db.fetchall()


class OrderService:
    def process(self, order):
        try:
            session.post("/charge")
        except Exception:
            logger.error("charge failed")

    def report(self):
        print("done")
`

func extractPython(t *testing.T, src string) []facts.CodeFact {
	t.Helper()
	ff, err := Extract(context.Background(), "python", "app/orders.py", []byte(src))
	require.NoError(t, err)
	return ff.Facts
}

func TestPythonImports(t *testing.T) {
	all := extractPython(t, pySource)

	imports := ofType(all, facts.FactImport)
	assert.Equal(t, []string{"logging", "fastapi", "boto3"}, factNames(imports))
	assert.Equal(t, 1, imports[0].LineStart)
	assert.Equal(t, 2, imports[1].LineStart)
	assert.Equal(t, 4, imports[2].LineStart)
}

func TestPythonFunctionsAndClasses(t *testing.T) {
	all := extractPython(t, pySource)

	functions := ofType(all, facts.FactFunction)
	assert.Equal(t, []string{"list_orders", "process", "report"}, factNames(functions))

	// Methods are scoped to the class, not to an enclosing function.
	for _, fn := range functions {
		assert.Empty(t, fn.ParentFunction, "function %s", fn.Name)
	}

	classes := ofType(all, facts.FactClass)
	require.Len(t, classes, 1)
	assert.Equal(t, "OrderService", classes[0].Name)
	assert.Equal(t, 15, classes[0].LineStart)
	assert.Equal(t, 23, classes[0].LineEnd)
}

func TestPythonDecoratorHandler(t *testing.T) {
	all := extractPython(t, pySource)

	handlers := ofType(all, facts.FactHTTPHandler)
	require.Len(t, handlers, 1)
	assert.Equal(t, "list_orders", handlers[0].Name)
	assert.Equal(t, "router.get", handlers[0].Meta("decorator"))
}

func TestPythonTryExcept(t *testing.T) {
	all := extractPython(t, pySource)

	tries := ofType(all, facts.FactTryExcept)
	require.Len(t, tries, 1)
	assert.Equal(t, "try", tries[0].Name)
	assert.Equal(t, "process", tries[0].ParentFunction)
	assert.Equal(t, 17, tries[0].LineStart)
}

func TestPythonCallClassification(t *testing.T) {
	all := extractPython(t, pySource)

	logging := ofType(all, facts.FactLoggingCall)
	require.Len(t, logging, 2)

	logError := factByName(t, all, facts.FactLoggingCall, "logger.error")
	assert.Equal(t, "error", logError.Meta("log_level"))
	assert.Equal(t, "process", logError.ParentFunction)

	// Bare print counts as info-level logging.
	printCall := factByName(t, all, facts.FactLoggingCall, "print")
	assert.Equal(t, "info", printCall.Meta("log_level"))
	assert.Equal(t, "report", printCall.ParentFunction)

	io := ofType(all, facts.FactExternalIO)
	assert.ElementsMatch(t, []string{"db.fetchall", "session.post"}, factNames(io))
	sessionPost := factByName(t, all, facts.FactExternalIO, "session.post")
	assert.Equal(t, "process", sessionPost.ParentFunction)

	// logging.getLogger and APIRouter() match no pattern table.
	assert.Empty(t, ofType(all, facts.FactMetricsCall))
}

func TestPythonMetricsConstructor(t *testing.T) {
	src := `from prometheus_client import Counter

REQUESTS = Counter("requests_total", "Total requests")

def record():
    statsd.timing("latency", 12)
    metrics.increment("orders")
`
	all := extractPython(t, src)

	metrics := ofType(all, facts.FactMetricsCall)
	assert.ElementsMatch(t, []string{"Counter", "statsd.timing", "metrics.increment"}, factNames(metrics))
}

func TestPythonFactFilePath(t *testing.T) {
	all := extractPython(t, pySource)
	for _, f := range all {
		assert.Equal(t, "app/orders.py", f.FilePath)
	}
}
