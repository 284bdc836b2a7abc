package resolve

import (
	"path/filepath"

	"github.com/matzehuels/distbuilder/pkg/plan"
	"github.com/matzehuels/distbuilder/pkg/render/nodelink"
)

// Files renders every configure output: the plan, the debug tree, the
// toolchain description and the graph inside buildDir, plus the rewritten
// request document at requestPath (skipped when requestPath is empty).
// Pass the result to [plan.WriteAll].
func (res *Result) Files(buildDir, requestPath string) ([]plan.File, error) {
	planData, err := res.Plan.Marshal()
	if err != nil {
		return nil, err
	}
	treeData, err := plan.MarshalTree(res.Tree)
	if err != nil {
		return nil, err
	}
	files := []plan.File{
		{Path: filepath.Join(buildDir, plan.PlanFile), Data: planData},
		{Path: filepath.Join(buildDir, plan.TreeFile), Data: treeData},
		{Path: filepath.Join(buildDir, plan.ToolchainFile), Data: []byte(res.Toolchain.Dump())},
		{Path: filepath.Join(buildDir, plan.GraphFile), Data: []byte(nodelink.ToDOT(res.Graph, nodelink.Options{Detailed: true}))},
	}
	if requestPath != "" {
		reqData, err := res.Request.Encode(plan.FormatOf(requestPath))
		if err != nil {
			return nil, err
		}
		files = append(files, plan.File{Path: requestPath, Data: reqData})
	}
	return files, nil
}
