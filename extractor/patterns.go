package extractor

// Call-site classification tables. A call is classified by its receiver
// object and method name, or by bare function name when there is no
// receiver. TypeScript shares the JavaScript tables.

// loggingObjects are receiver names that indicate a logging call.
var loggingObjects = map[string]map[string]bool{
	"python": {
		"logger": true, "logging": true, "log": true, "LOGGER": true, "LOG": true,
	},
	"javascript": {
		"console": true, "logger": true, "winston": true, "bunyan": true,
		"pino": true, "log": true,
	},
	"go": {
		"log": true, "logger": true, "slog": true, "logrus": true,
		"zap": true, "zerolog": true, "klog": true,
	},
}

// loggingMethods are method names that indicate logging when paired with a
// logging object.
var loggingMethods = map[string]map[string]bool{
	"python": {
		"debug": true, "info": true, "warning": true, "warn": true,
		"error": true, "critical": true, "exception": true, "fatal": true,
		"log": true,
	},
	"javascript": {
		"log": true, "info": true, "warn": true, "error": true,
		"debug": true, "trace": true,
	},
	"go": {
		"Print": true, "Println": true, "Printf": true,
		"Fatal": true, "Fatalf": true, "Fatalln": true,
		"Panic": true, "Panicf": true, "Panicln": true,
		"Info": true, "Infof": true, "Infow": true, "Infoln": true,
		"Debug": true, "Debugf": true, "Debugw": true, "Debugln": true,
		"Warn": true, "Warnf": true, "Warnw": true, "Warnln": true,
		"Error": true, "Errorf": true, "Errorw": true, "Errorln": true,
		"With": true, "WithField": true, "WithFields": true,
	},
}

// loggingFunctions are bare function names that count as logging.
var loggingFunctions = map[string]map[string]bool{
	"python": {"print": true},
}

// metricsObjects are receiver names that indicate metrics instrumentation.
var metricsObjects = map[string]map[string]bool{
	"python": {
		"Counter": true, "Histogram": true, "Gauge": true, "Summary": true,
		"statsd": true, "metrics": true, "dd_metrics": true, "dogstatsd": true,
	},
	"javascript": {
		"prometheus": true, "metrics": true, "statsd": true,
		"datadog": true, "newrelic": true, "client": true,
	},
	"go": {
		"prometheus": true, "promauto": true, "metrics": true, "statsd": true,
	},
}

// metricsMethods are method names that indicate metrics operations.
var metricsMethods = map[string]map[string]bool{
	"python": {
		"inc": true, "dec": true, "observe": true, "set": true, "labels": true,
		"increment": true, "decrement": true, "timing": true, "gauge": true,
		"histogram": true,
	},
	"javascript": {
		"inc": true, "dec": true, "observe": true, "set": true, "labels": true,
		"increment": true, "decrement": true, "timing": true, "gauge": true,
		"histogram": true, "counter": true,
	},
	"go": {
		"Inc": true, "Dec": true, "Observe": true, "Set": true, "Add": true,
		"With": true, "WithLabelValues": true,
		"NewCounter": true, "NewHistogram": true, "NewGauge": true,
	},
}

// metricsFunctions are bare function names that count as metrics calls
// (constructor style in Python, promauto style in Go).
var metricsFunctions = map[string]map[string]bool{
	"python": {
		"Counter": true, "Histogram": true, "Gauge": true, "Summary": true,
		"Info": true, "Enum": true,
	},
	"go": {
		"NewCounter": true, "NewCounterVec": true,
		"NewHistogram": true, "NewHistogramVec": true,
		"NewGauge": true, "NewGaugeVec": true,
	},
}

// externalIOObjects are receiver names that indicate HTTP, database, file,
// or cloud I/O.
var externalIOObjects = map[string]map[string]bool{
	"python": {
		"requests": true, "httpx": true, "aiohttp": true, "urllib": true,
		"urllib3": true,
		"db": true, "cursor": true, "session": true, "connection": true,
		"engine": true,
		"boto3": true, "s3": true, "sqs": true, "dynamodb": true,
		"s3_client": true, "sqs_client": true,
		"redis": true, "client": true,
	},
	"javascript": {
		"axios": true, "http": true, "https": true, "fetch": true,
		"db": true, "pool": true, "connection": true, "knex": true,
		"prisma": true, "mongoose": true, "sequelize": true,
		"fs": true, "s3": true, "dynamodb": true, "redis": true,
	},
	"go": {
		"http": true, "client": true,
		"db": true, "sql": true, "tx": true, "conn": true, "rows": true,
		"os": true, "ioutil": true,
		"grpc": true, "s3": true, "sqs": true, "dynamodb": true, "redis": true,
	},
}

// externalIOMethods are method names on I/O objects that represent actual
// I/O operations.
var externalIOMethods = map[string]map[string]bool{
	"python": {
		"get": true, "post": true, "put": true, "delete": true, "patch": true,
		"head": true, "request": true, "send": true,
		"execute": true, "executemany": true, "fetchone": true,
		"fetchall": true, "fetchmany": true,
		"commit": true, "rollback": true, "connect": true,
		"upload_file": true, "download_file": true,
		"put_object": true, "get_object": true,
		"send_message": true, "receive_message": true,
	},
	"javascript": {
		"get": true, "post": true, "put": true, "delete": true, "patch": true,
		"request": true,
		"query": true, "execute": true, "find": true, "findOne": true,
		"findMany": true, "create": true, "update": true, "insertMany": true,
		"readFile": true, "writeFile": true, "readdir": true, "mkdir": true,
		"unlink": true,
	},
	"go": {
		"Get": true, "Post": true, "Do": true, "Head": true, "NewRequest": true,
		"Query": true, "QueryRow": true, "Exec": true,
		"QueryContext": true, "ExecContext": true,
		"Prepare": true, "Begin": true, "Commit": true, "Rollback": true,
		"Open": true, "ReadFile": true, "WriteFile": true, "Create": true,
	},
}

// externalIOFunctions are bare function names that count as external I/O.
var externalIOFunctions = map[string]map[string]bool{
	"python":     {"open": true, "urlopen": true},
	"javascript": {"fetch": true},
}

// handlerDecorators are decorator names that mark a function as an HTTP
// route handler.
var handlerDecorators = map[string]map[string]bool{
	"python": {
		"app.get": true, "app.post": true, "app.put": true,
		"app.delete": true, "app.patch": true,
		"app.route": true, "app.api_route": true,
		"router.get": true, "router.post": true, "router.put": true,
		"router.delete": true, "router.patch": true,
		"router.route": true, "router.api_route": true,
		"route": true, "api_view": true,
	},
}

// handlerCallObjects are receiver names for route registration calls
// (Express, Gin, Chi style).
var handlerCallObjects = map[string]map[string]bool{
	"javascript": {"app": true, "router": true, "server": true},
	"go": {
		"mux": true, "router": true, "r": true, "e": true, "g": true,
		"http": true,
	},
}

// handlerCallMethods are method names for route registration calls.
var handlerCallMethods = map[string]map[string]bool{
	"javascript": {
		"get": true, "post": true, "put": true, "delete": true, "patch": true,
		"use": true, "all": true, "route": true,
	},
	"go": {
		"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
		"Handle": true, "HandleFunc": true,
		"Get": true, "Post": true, "Put": true, "Delete": true,
		"Group": true, "Use": true,
	},
}

// patternLanguage maps a language to the table key it classifies under.
func patternLanguage(lang string) string {
	if lang == "typescript" {
		return "javascript"
	}
	return lang
}

// isLoggingCall reports whether an object.method call, or a bare function
// call when object is empty, is a logging statement.
func isLoggingCall(lang, object, method string) bool {
	lang = patternLanguage(lang)
	if object != "" {
		return loggingObjects[lang][object] && loggingMethods[lang][method]
	}
	return loggingFunctions[lang][method]
}

// isMetricsCall reports whether a call is metrics instrumentation.
func isMetricsCall(lang, object, method string) bool {
	lang = patternLanguage(lang)
	if object != "" {
		return metricsObjects[lang][object] && metricsMethods[lang][method]
	}
	return metricsFunctions[lang][method]
}

// isExternalIO reports whether a call is an external I/O operation.
func isExternalIO(lang, object, method string) bool {
	lang = patternLanguage(lang)
	if object != "" {
		return externalIOObjects[lang][object] && externalIOMethods[lang][method]
	}
	return externalIOFunctions[lang][method]
}

// isHandlerDecorator reports whether a decorator marks an HTTP handler.
func isHandlerDecorator(lang, decorator string) bool {
	return handlerDecorators[patternLanguage(lang)][decorator]
}

// isHandlerRegistration reports whether an object.method call registers an
// HTTP route.
func isHandlerRegistration(lang, object, method string) bool {
	lang = patternLanguage(lang)
	return handlerCallObjects[lang][object] && handlerCallMethods[lang][method]
}
