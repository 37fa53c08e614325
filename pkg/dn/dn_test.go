package dn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		depth   int
		norm    string
		wantErr bool
	}{
		{"root", "", 0, "", false},
		{"whitespace root", "   ", 0, "", false},
		{"simple", "dc=example,dc=com", 2, "dc=example,dc=com", false},
		{"mixed case type", "DC=Example, DC=Com", 2, "dc=example,dc=com", false},
		{"escaped comma", `cn=Smith\, John,ou=people,dc=example`, 3, `cn=smith\, john,ou=people,dc=example`, false},
		{"multi-valued rdn", "cn=a+sn=b,dc=com", 2, "cn=a+sn=b,dc=com", false},
		{"oid type", "2.5.4.3=x,dc=com", 2, "2.5.4.3=x,dc=com", false},
		{"missing equals", "sub,dc=com", 0, "", true},
		{"empty component", "dc=a,,dc=b", 0, "", true},
		{"trailing comma", "dc=a,", 0, "", true},
		{"dangling escape", `dc=a\`, 0, "", true},
		{"escaped trailing space", `cn=a\ `, 1, `cn=a\ `, false},
		{"escaped space before separator", `cn=a\ , dc=com `, 2, `cn=a\ ,dc=com`, false},
		{"escaped backslash then space", `cn=a\\ ,dc=com`, 2, `cn=a\\,dc=com`, false},
		{"empty type", "=value,dc=com", 0, "", true},
		{"bad type char", "d c=a", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDN)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.depth, d.Depth())
			assert.Equal(t, tt.norm, d.Normalized())
		})
	}
}

func TestStringPreservesText(t *testing.T) {
	d := MustParse("uid=Alice,ou=People,dc=example,dc=com")
	assert.Equal(t, "uid=Alice,ou=People,dc=example,dc=com", d.String())

	again, err := Parse(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, again)
}

func TestParent(t *testing.T) {
	d := MustParse("uid=alice,ou=users,dc=example,dc=com")

	parent, ok := d.Parent()
	require.True(t, ok)
	assert.Equal(t, "ou=users,dc=example,dc=com", parent.String())

	top, ok := MustParse("dc=com").Parent()
	require.True(t, ok)
	assert.True(t, top.IsRoot())

	_, ok = Root.Parent()
	assert.False(t, ok)
}

func TestChild(t *testing.T) {
	base := MustParse("dc=example,dc=com")

	child, err := base.Child("ou=people")
	require.NoError(t, err)
	assert.Equal(t, "ou=people,dc=example,dc=com", child.String())
	assert.True(t, base.IsParentOf(child))

	fromRoot, err := Root.Child("dc=com")
	require.NoError(t, err)
	assert.True(t, fromRoot.Equal(MustParse("dc=com")))

	_, err = base.Child("ou=a,ou=b")
	assert.ErrorIs(t, err, ErrInvalidRDN)

	_, err = base.Child("people")
	assert.ErrorIs(t, err, ErrInvalidRDN)
}

func TestEqual(t *testing.T) {
	assert.True(t, MustParse("DC=Example,dc=COM").Equal(MustParse("dc=example, dc=com")))
	assert.False(t, MustParse("dc=example,dc=com").Equal(MustParse("dc=example,dc=org")))
	assert.False(t, MustParse("dc=com").Equal(Root))
	assert.True(t, Root.Equal(MustParse("")))
}

func TestRelationships(t *testing.T) {
	base := MustParse("dc=example,dc=com")
	child := MustParse("ou=people,dc=example,dc=com")
	grandchild := MustParse("uid=bob,ou=people,dc=example,dc=com")

	assert.True(t, base.IsParentOf(child))
	assert.False(t, base.IsParentOf(grandchild))
	assert.True(t, base.IsAncestorOf(grandchild))
	assert.False(t, child.IsAncestorOf(base))
	assert.True(t, Root.IsParentOf(MustParse("dc=com")))
	assert.True(t, Root.IsAncestorOf(base))
	assert.False(t, base.IsParentOf(MustParse("ou=people,dc=other,dc=com")))
}

func TestParseRDN(t *testing.T) {
	norm, err := ParseRDN(" CN=Test ")
	require.NoError(t, err)
	assert.Equal(t, "cn=Test", norm)

	_, err = ParseRDN("")
	assert.Error(t, err)
}
