package cluster

import (
	"testing"

	"github.com/google/uuid"
)

func TestCluster_CanManage(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	c := Cluster{CreatedByID: &owner}

	if !c.CanManage(owner, false) {
		t.Error("creator should be able to manage their own cluster")
	}
	if c.CanManage(other, false) {
		t.Error("a non-creator, non-admin should not be able to manage the cluster")
	}
	if !c.CanManage(other, true) {
		t.Error("an admin should be able to manage any cluster")
	}
}

func TestCluster_CanManage_NilCreator(t *testing.T) {
	c := Cluster{}
	if c.CanManage(uuid.New(), false) {
		t.Error("a cluster with no recorded creator should not be manageable by a non-admin")
	}
}
