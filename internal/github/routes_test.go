package github

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractRoutes(t *testing.T) {
	source := `
import { Router } from "express";
const router = Router();

router.get("/api/projects", listProjects);
router.post('/api/projects', createProject);
app.get("/api/health", health);
router.get("/api/projects", listProjectsAgain); // duplicate path
router.delete( "/api/projects/:id", removeProject);
`

	result := ExtractRoutes(source, "server/routes.ts")
	require.Equal(t, 3, result.RouteCount)
	require.Equal(t, []string{"/api/projects", "/api/health", "/api/projects/:id"}, result.Routes)
	require.Equal(t, "server/routes.ts", result.SourceFile)
}

func TestExtractRoutesDeterministicOrder(t *testing.T) {
	source := `
router.put("/b", b);
router.get("/a", a);
router.all("/c", c);
router.patch('/a', aAgain);
`

	first := ExtractRoutes(source, "routes.ts")
	second := ExtractRoutes(source, "routes.ts")
	require.Equal(t, first, second)
	require.Equal(t, []string{"/b", "/a", "/c"}, first.Routes)
	require.Equal(t, 3, first.RouteCount)
}

func TestExtractRoutesIgnoresNonRouteCalls(t *testing.T) {
	source := `
fetch("/api/should-not-count");
myRouter.get("/nope", x);
router.use("/prefix", sub);
const s = "router.get is mentioned in a string";
`

	result := ExtractRoutes(source, "routes.ts")
	require.Zero(t, result.RouteCount)
	require.Empty(t, result.Routes)
}

func TestExtractRoutesEmptySource(t *testing.T) {
	result := ExtractRoutes("", "routes.ts")
	require.Zero(t, result.RouteCount)
	require.NotNil(t, result.Routes)
}
