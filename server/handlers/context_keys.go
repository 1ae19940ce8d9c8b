package server_handlers

const (
	RouteTypeMock      = "mock"
	RouteTypeFilesystem = "filesystem"
	RouteTypeInternal  = "internal"
	RouteTypeUnmatched = "unmatched"
)

const (
	CtxRequestID = "__req_id"
	CtxRouteType = "__route_type" // "mock" | "filesystem"
	CtxRoutePath = "__route_path"
	CtxRouteName = "__route_name"
)
